package declarative

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of a definition document.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		// Optional fields are tagged omitempty; everything else is required.
		RequiredFromJSONSchemaTags: false,
	}
	s := r.Reflect(&Document{})
	s.Title = "wingman definitions"
	s.Description = "Agents, tasks and crews. Files may also omit the top-level key when named agents, tasks or crew."
	return json.MarshalIndent(s, "", "  ")
}
