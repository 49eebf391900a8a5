package dbschema

import (
	"strings"
	"testing"
)

func TestSQL_RendersQuotedSchema(t *testing.T) {
	t.Parallel()

	ddl, err := SQL("huddle_it")
	if err != nil {
		t.Fatalf("SQL: %v", err)
	}
	if strings.Contains(ddl, "{{schema}}") {
		t.Fatalf("placeholder left in rendered DDL")
	}
	if !strings.Contains(ddl, `"huddle_it".sessions`) {
		t.Fatalf("expected quoted schema in DDL")
	}
}

func TestSQL_RejectsBadIdentifier(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "1abc", "a;drop", "with space"} {
		if _, err := SQL(s); err != ErrInvalidSchema {
			t.Fatalf("SQL(%q) err=%v want ErrInvalidSchema", s, err)
		}
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	if got := Table("huddle", "users"); got != `"huddle"."users"` {
		t.Fatalf("Table=%q", got)
	}
}
