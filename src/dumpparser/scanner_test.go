package dumpparser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugabyte/yb-anonymizer/src/errs"
	"github.com/yugabyte/yb-anonymizer/src/schemareg"
)

// scanAll drains the whole input; unconsumed data statements are skipped by
// the scanner itself.
func scanAll(t *testing.T, input string) []*Statement {
	t.Helper()
	sc := NewScanner(strings.NewReader(input))
	var stmts []*Statement
	for {
		stmt, err := sc.Next()
		if err == io.EOF {
			return stmts
		}
		require.NoError(t, err)
		stmts = append(stmts, stmt)
	}
}

// joinRaw rebuilds the byte stream of verbatim statements.
func joinRaw(stmts []*Statement) string {
	var sb strings.Builder
	for _, s := range stmts {
		sb.Write(s.Raw)
	}
	return sb.String()
}

func TestScannerPassesNonDataStatementsThroughByteForByte(t *testing.T) {
	input := "--\n-- PostgreSQL database dump\n--\n\n" +
		"SET statement_timeout = 0;\n" +
		"SELECT pg_catalog.set_config('search_path', '', false);\n\n" +
		"ALTER TABLE ONLY public.users ADD CONSTRAINT users_pkey PRIMARY KEY (id);\n"

	stmts := scanAll(t, input)
	for _, s := range stmts {
		assert.Equal(t, StatementVerbatim, s.Kind)
	}
	assert.Equal(t, input, joinRaw(stmts))
}

func TestScannerKeepsSemicolonsInsideLiteralsAndComments(t *testing.T) {
	input := "CREATE FUNCTION public.f() RETURNS void AS $fn$\n" +
		"BEGIN\n  PERFORM 1; PERFORM 2;\nEND;\n$fn$ LANGUAGE plpgsql;\n" +
		"/* outer ; /* nested ; */ still outer ; */\n" +
		"SELECT 'a;b', E'c;\\'d', \"col;name\" FROM t;\n"

	stmts := scanAll(t, input)
	var statements []*Statement
	for _, s := range stmts {
		if strings.TrimSpace(string(s.Raw)) != "" && !strings.HasPrefix(strings.TrimSpace(string(s.Raw)), "/*") {
			statements = append(statements, s)
		}
	}
	require.Len(t, statements, 2)
	assert.True(t, strings.HasSuffix(string(statements[0].Raw), "LANGUAGE plpgsql;"))
	assert.True(t, strings.HasSuffix(string(statements[1].Raw), "FROM t;"))
	assert.Equal(t, input, joinRaw(stmts))
}

func TestScannerTreatsDirectiveLinesAsVerbatim(t *testing.T) {
	input := "\\restrict dump_key_1234\n\\connect appdb\nSET search_path = public;\n\\unrestrict dump_key_1234\n"
	stmts := scanAll(t, input)
	assert.Equal(t, input, joinRaw(stmts))

	var directives []string
	for _, s := range stmts {
		if strings.HasPrefix(string(s.Raw), "\\") {
			directives = append(directives, strings.TrimSuffix(string(s.Raw), "\n"))
		}
	}
	assert.Equal(t, []string{"\\restrict dump_key_1234", "\\connect appdb", "\\unrestrict dump_key_1234"}, directives)
}

func TestScanCreateTable(t *testing.T) {
	input := `CREATE TABLE public.users (
    id bigint NOT NULL,
    email text,
    full_name character varying(80) DEFAULT 'anon'::character varying,
    balance numeric(10,2) DEFAULT 0 NOT NULL,
    created_at timestamp(6) with time zone DEFAULT now(),
    tags text[],
    CONSTRAINT users_pkey PRIMARY KEY (id),
    CHECK ((balance >= (0)::numeric))
);
`
	stmts := scanAll(t, input)
	require.Len(t, stmts, 2) // statement + trailing newline
	stmt := stmts[0]
	require.Equal(t, StatementCreateTable, stmt.Kind)
	assert.Equal(t, input[:len(input)-1], string(stmt.Raw))

	schema := stmt.Schema
	require.NotNil(t, schema)
	assert.Equal(t, "public.users", schema.Name.Qualified())
	assert.False(t, schema.Synthetic)
	require.Equal(t, []string{"id", "email", "full_name", "balance", "created_at", "tags"}, schema.ColumnNames())

	wantTypes := map[string]struct {
		declared string
		category schemareg.TypeCategory
	}{
		"id":         {"bigint", schemareg.TypeCategoryNumeric},
		"email":      {"text", schemareg.TypeCategoryText},
		"full_name":  {"character varying(80)", schemareg.TypeCategoryText},
		"balance":    {"numeric(10,2)", schemareg.TypeCategoryNumeric},
		"created_at": {"timestamp(6) with time zone", schemareg.TypeCategoryTemporal},
		"tags":       {"text[]", schemareg.TypeCategoryOther},
	}
	for name, want := range wantTypes {
		col, ok := schema.GetColumn(name)
		require.True(t, ok, "column %s", name)
		assert.Equal(t, want.declared, col.DeclaredType, "column %s", name)
		assert.Equal(t, want.category, col.Category, "column %s", name)
	}
}

func TestScanCreateTableQuotedIdentifiers(t *testing.T) {
	input := `CREATE UNLOGGED TABLE IF NOT EXISTS "My Schema"."User Data" ("Full Name" text, "order" integer);`
	stmts := scanAll(t, input)
	require.Len(t, stmts, 1)
	require.Equal(t, StatementCreateTable, stmts[0].Kind)
	schema := stmts[0].Schema
	assert.Equal(t, "My Schema.User Data", schema.Name.Qualified())
	assert.Equal(t, []string{"Full Name", "order"}, schema.ColumnNames())
	assert.Equal(t, input, string(stmts[0].Raw))
}

func TestScanCreateVariantsFallBackToVerbatim(t *testing.T) {
	inputs := []string{
		"CREATE INDEX users_email_idx ON public.users USING btree (email);",
		"CREATE SEQUENCE public.users_id_seq START WITH 1;",
		"CREATE TABLE public.m_y2024 PARTITION OF public.m FOR VALUES IN (2024);",
		"CREATE TABLE public.t2 AS SELECT * FROM public.t1;",
	}
	for _, input := range inputs {
		t.Run(input[:30], func(t *testing.T) {
			stmts := scanAll(t, input)
			require.Len(t, stmts, 1)
			assert.Equal(t, StatementVerbatim, stmts[0].Kind)
			assert.Equal(t, input, string(stmts[0].Raw))
		})
	}
}

func TestScanInsertClassification(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		sc := NewScanner(strings.NewReader("INSERT INTO public.users VALUES (1, 'a');"))
		stmt, err := sc.Next()
		require.NoError(t, err)
		require.Equal(t, StatementInsert, stmt.Kind)
		assert.Equal(t, "public.users", stmt.Insert.Table.Qualified())
		assert.Nil(t, stmt.Insert.Columns)
	})
	t.Run("column list with quoted identifier", func(t *testing.T) {
		sc := NewScanner(strings.NewReader(`INSERT INTO orders (id, "Customer Name") VALUES (1, 'x');`))
		stmt, err := sc.Next()
		require.NoError(t, err)
		require.Equal(t, StatementInsert, stmt.Kind)
		assert.Equal(t, "public.orders", stmt.Insert.Table.Qualified())
		assert.Equal(t, []string{"id", "Customer Name"}, stmt.Insert.Columns)
	})
	t.Run("overriding system value", func(t *testing.T) {
		sc := NewScanner(strings.NewReader("INSERT INTO t (id) OVERRIDING SYSTEM VALUE VALUES (1);"))
		stmt, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, StatementInsert, stmt.Kind)
	})
	t.Run("default values stays verbatim", func(t *testing.T) {
		input := "INSERT INTO t DEFAULT VALUES;"
		stmts := scanAll(t, input)
		require.Len(t, stmts, 1)
		assert.Equal(t, StatementVerbatim, stmts[0].Kind)
		assert.Equal(t, input, string(stmts[0].Raw))
	})
	t.Run("insert select stays verbatim", func(t *testing.T) {
		input := "INSERT INTO t SELECT * FROM s WHERE s.x > 1;"
		stmts := scanAll(t, input)
		require.Len(t, stmts, 1)
		assert.Equal(t, StatementVerbatim, stmts[0].Kind)
		assert.Equal(t, input, string(stmts[0].Raw))
	})
}

func TestScanCopyClassification(t *testing.T) {
	t.Run("copy from stdin", func(t *testing.T) {
		header := "COPY public.users (id, email) FROM stdin;\n"
		sc := NewScanner(strings.NewReader(header + "1\ta@b.example\n\\.\n"))
		stmt, err := sc.Next()
		require.NoError(t, err)
		require.Equal(t, StatementCopy, stmt.Kind)
		assert.Equal(t, "public.users", stmt.Copy.Table.Qualified())
		assert.Equal(t, []string{"id", "email"}, stmt.Copy.Columns)
		assert.Equal(t, header, string(stmt.Copy.HeaderRaw))
	})
	t.Run("copy from file stays verbatim", func(t *testing.T) {
		input := "COPY t FROM '/tmp/data.txt';"
		stmts := scanAll(t, input)
		require.Len(t, stmts, 1)
		assert.Equal(t, StatementVerbatim, stmts[0].Kind)
		assert.Equal(t, input, string(stmts[0].Raw))
	})
	t.Run("copy to stdout stays verbatim", func(t *testing.T) {
		input := "COPY t TO stdout;"
		stmts := scanAll(t, input)
		require.Len(t, stmts, 1)
		assert.Equal(t, StatementVerbatim, stmts[0].Kind)
	})
	t.Run("csv format is rejected", func(t *testing.T) {
		sc := NewScanner(strings.NewReader("COPY t (a) FROM stdin WITH (FORMAT csv);\n1\n\\.\n"))
		_, err := sc.Next()
		require.Error(t, err)
		var mle *errs.MalformedLiteralError
		require.ErrorAs(t, err, &mle)
		assert.Contains(t, err.Error(), "csv")
	})
}

func TestScannerDrainsUnconsumedDataStatements(t *testing.T) {
	input := "INSERT INTO t VALUES (1, 'a'), (2, 'b');\n" +
		"COPY t (a) FROM stdin;\nrow1\nrow2\n\\.\n" +
		"SET x = 1;\n"
	sc := NewScanner(strings.NewReader(input))

	stmt, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, StatementInsert, stmt.Kind)

	stmt, err = sc.Next() // drains the insert rows
	require.NoError(t, err)
	assert.Equal(t, StatementVerbatim, stmt.Kind) // the newline gap

	stmt, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, StatementCopy, stmt.Kind)

	stmt, err = sc.Next() // drains the copy rows first
	require.NoError(t, err)
	assert.Equal(t, StatementVerbatim, stmt.Kind)
	assert.Equal(t, "SET x = 1;", string(stmt.Raw))

	stmt, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "\n", string(stmt.Raw))

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerStatementOffsets(t *testing.T) {
	input := "SET a = 1;\nSET b = 2;"
	stmts := scanAll(t, input)
	require.Len(t, stmts, 3)
	assert.Equal(t, int64(0), stmts[0].Offset)
	assert.Equal(t, int64(10), stmts[1].Offset) // the newline
	assert.Equal(t, int64(11), stmts[2].Offset)
}

func TestScannerTruncatedStatementComesBackVerbatim(t *testing.T) {
	input := "CREATE TABLE public.broken (id bigint"
	stmts := scanAll(t, input)
	require.Len(t, stmts, 1)
	assert.Equal(t, StatementVerbatim, stmts[0].Kind)
	assert.Equal(t, input, string(stmts[0].Raw))
}
