package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		row      Row
		want     string
	}{
		{
			name:     "single placeholder",
			template: "Hi {{name}}!",
			row:      Row{"name": "Ada"},
			want:     "Hi Ada!",
		},
		{
			name:     "missing key left verbatim",
			template: "Hi {{name}}!",
			row:      Row{"other": "x"},
			want:     "Hi {{name}}!",
		},
		{
			name:     "empty value left verbatim",
			template: "Hi {{name}}!",
			row:      Row{"name": ""},
			want:     "Hi {{name}}!",
		},
		{
			name:     "every occurrence substituted",
			template: "{{name}}, {{name}} and {{name}}",
			row:      Row{"name": "Ada"},
			want:     "Ada, Ada and Ada",
		},
		{
			name:     "several keys",
			template: "<p>Your mentors will be {{mentor1}} and {{mentor2}} :))</p>",
			row:      Row{"mentor1": "Grace", "mentor2": "Alan"},
			want:     "<p>Your mentors will be Grace and Alan :))</p>",
		},
		{
			name:     "inner whitespace is part of the key",
			template: "Hi {{ name }} and {{name}}",
			row:      Row{"name": "Ada"},
			want:     "Hi {{ name }} and Ada",
		},
		{
			name:     "key with spaces",
			template: "Hi {{first name}}",
			row:      Row{"first name": "Ada"},
			want:     "Hi Ada",
		},
		{
			name:     "unterminated token is literal",
			template: "Hi {{name",
			row:      Row{"name": "Ada"},
			want:     "Hi {{name",
		},
		{
			name:     "value not rescanned",
			template: "Hi {{name}}",
			row:      Row{"name": "{{name}}{{other}}", "other": "x"},
			want:     "Hi {{name}}{{other}}",
		},
		{
			name:     "value inserted without escaping",
			template: "<p>{{body}}</p>",
			row:      Row{"body": "<b>bold</b> & co"},
			want:     "<p><b>bold</b> & co</p>",
		},
		{
			name:     "token does not span lines",
			template: "{{na\nme}} {{name}}",
			row:      Row{"na\nme": "x", "name": "Ada"},
			want:     "{{na\nme}} Ada",
		},
		{
			name:     "no placeholders",
			template: "<p>static</p>",
			row:      Row{"name": "Ada"},
			want:     "<p>static</p>",
		},
		{
			name:     "nil row",
			template: "Hi {{name}}",
			row:      nil,
			want:     "Hi {{name}}",
		},
		{
			name:     "empty identifier",
			template: "Hi {{}}",
			row:      Row{"": "x"},
			want:     "Hi x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, tt.row))
		})
	}
}

func TestRender_DoesNotMutateInputs(t *testing.T) {
	template := "Hello {{name}}, meet {{mentor}}"
	row := Row{"name": "Ada", "email": "ada@example.com"}
	rowCopy := Row{"name": "Ada", "email": "ada@example.com"}

	first := Render(template, row)
	second := Render(template, row)

	assert.Equal(t, first, second)
	assert.Equal(t, "Hello Ada, meet {{mentor}}", first)
	assert.Equal(t, "Hello {{name}}, meet {{mentor}}", template)
	assert.Equal(t, rowCopy, row)
}

func TestIdentifiers(t *testing.T) {
	ids := Identifiers("{{name}} {{mentor1}} {{name}} {{ mentor2 }} {{broken")

	assert.Equal(t, []string{"name", "mentor1", " mentor2 "}, ids)
	assert.Empty(t, Identifiers("no tokens"))
}

func TestUnresolved(t *testing.T) {
	template := "{{name}} {{mentor1}} {{mentor2}}"

	assert.Equal(t, []string{"mentor2"}, Unresolved(template, Row{"name": "Ada", "mentor1": "Grace", "mentor2": ""}))
	assert.Empty(t, Unresolved(template, Row{"name": "Ada", "mentor1": "Grace", "mentor2": "Alan"}))
}
