package crews

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{"single", "Research {topic}", map[string]string{"topic": "AI Ethics"}, "Research AI Ethics"},
		{"repeated", "{a}-{a}", map[string]string{"a": "x"}, "x-x"},
		{"unknown kept", "{topic} by {author}", map[string]string{"topic": "Go"}, "Go by {author}"},
		{"nil vars", "{topic}", nil, "{topic}"},
		{"json untouched", `{"k": 1} {topic}`, map[string]string{"topic": "t", "k": "nope"}, `{"k": 1} t`},
		{"empty braces", "{} { topic }", map[string]string{"topic": "t"}, "{} { topic }"},
		{"dotted names", "{task.output}", map[string]string{"task.output": "done"}, "done"},
		{"value not rescanned", "{a}", map[string]string{"a": "{b}", "b": "z"}, "{b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bind(tt.template, tt.vars))
		})
	}
}

func TestBind_DoesNotMutateInputs(t *testing.T) {
	template := "Research {topic}"
	vars := map[string]string{"topic": "AI"}
	_ = Bind(template, vars)
	assert.Equal(t, "Research {topic}", template)
	assert.Equal(t, map[string]string{"topic": "AI"}, vars)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"topic", "previous_task_output"},
		Placeholders("Write about {topic} from {previous_task_output} on {topic}"))
	assert.Nil(t, Placeholders("no tokens"))
}

// TestProperty_Bind_IdempotentForTokenFreeValues: for any template whose
// placeholders are all covered by the context, and whose context values hold
// no complete token, binding twice equals binding once.
func TestProperty_Bind_IdempotentForTokenFreeValues(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z_][a-z0-9_]{0,8}`), 1, 5, rapid.ID[string]).Draw(rt, "names")
		vars := make(map[string]string, len(names))
		for i, n := range names {
			// Values may contain braces but never a complete token.
			vars[n] = rapid.StringMatching(`[A-Za-z0-9 {]{0,12}`).Draw(rt, fmt.Sprintf("value_%d", i))
		}

		parts := rapid.SliceOfN(rapid.IntRange(0, len(names)), 1, 10).Draw(rt, "parts")
		template := ""
		for i, p := range parts {
			if p == len(names) {
				template += rapid.StringMatching(`[A-Za-z ,.]{0,6}`).Draw(rt, fmt.Sprintf("text_%d", i))
				continue
			}
			template += "{" + names[p] + "}"
		}

		once := Bind(template, vars)
		twice := Bind(once, vars)
		if once != twice {
			rt.Fatalf("bind not idempotent: template=%q once=%q twice=%q", template, once, twice)
		}
	})
}

// TestProperty_Bind_InsertsValuesVerbatim: values are inserted as written even
// when they contain tokens the context covers, so a single pass never expands
// text that came out of another task.
func TestProperty_Bind_InsertsValuesVerbatim(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z_][a-z0-9_]{0,8}`), 1, 5, rapid.ID[string]).Draw(rt, "names")
		vars := make(map[string]string, len(names))
		for i, n := range names {
			ref := names[rapid.IntRange(0, len(names)-1).Draw(rt, fmt.Sprintf("ref_%d", i))]
			prefix := rapid.StringMatching(`[A-Za-z0-9 {}]{0,6}`).Draw(rt, fmt.Sprintf("prefix_%d", i))
			vars[n] = prefix + "{" + ref + "}"
		}

		parts := rapid.SliceOfN(rapid.IntRange(0, len(names)), 1, 10).Draw(rt, "parts")
		template, want := "", ""
		for i, p := range parts {
			if p == len(names) {
				text := rapid.StringMatching(`[A-Za-z ,.]{0,6}`).Draw(rt, fmt.Sprintf("text_%d", i))
				template += text
				want += text
				continue
			}
			template += "{" + names[p] + "}"
			want += vars[names[p]]
		}

		if got := Bind(template, vars); got != want {
			rt.Fatalf("values were rescanned: template=%q got=%q want=%q", template, got, want)
		}
	})
}
