package registry

import (
	"testing"

	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

func TestEveryTypeHasSchemaAndValidDefault(t *testing.T) {
	for _, nt := range Types() {
		s, err := SchemaFor(nt)
		require.NoError(t, err, nt)
		require.Equal(t, nt, s.Type)

		cfg, err := DefaultConfig(nt)
		require.NoError(t, err)
		require.Empty(t, s.Validate(cfg), "default config of %s should validate", nt)
	}
}

func TestUnknownType(t *testing.T) {
	_, err := SchemaFor("carousel")
	require.Error(t, err)
	_, err = DefaultConfig("carousel")
	require.Error(t, err)
	require.False(t, IsKnown("carousel"))
}

func TestDefaultConfigIsACopy(t *testing.T) {
	cfg, err := DefaultConfig(model.NODE_BUTTON)
	require.NoError(t, err)
	cfg.Buttons[0] = "changed"

	again, err := DefaultConfig(model.NODE_BUTTON)
	require.NoError(t, err)
	require.Equal(t, "Option 1", again.Buttons[0])
}

func TestValidate(t *testing.T) {
	for scenario, tc := range map[string]struct {
		nodeType model.NodeType
		cfg      model.NodeConfig
		fields   []string
	}{
		"message requires text": {
			nodeType: model.NODE_MESSAGE,
			cfg:      model.NodeConfig{},
			fields:   []string{"message"},
		},
		"delay must be positive": {
			nodeType: model.NODE_DELAY,
			cfg:      model.NodeConfig{Delay: -3},
			fields:   []string{"delay"},
		},
		"delay missing": {
			nodeType: model.NODE_DELAY,
			cfg:      model.NodeConfig{},
			fields:   []string{"delay"},
		},
		"condition bad operator": {
			nodeType: model.NODE_CONDITION,
			cfg:      model.NodeConfig{Variable: "age", Operator: "between"},
			fields:   []string{"operator"},
		},
		"webhook bad method and url": {
			nodeType: model.NODE_WEBHOOK,
			cfg:      model.NodeConfig{URL: "not a url", Method: "PATCH"},
			fields:   []string{"method", "url"},
		},
		"webhook templated url accepted": {
			nodeType: model.NODE_WEBHOOK,
			cfg:      model.NodeConfig{URL: "{{base}}/hook", Method: "get"},
		},
		"save_variable needs assignment": {
			nodeType: model.NODE_ACTION,
			cfg:      model.NodeConfig{ActionType: model.ACTION_SAVE_VARIABLE, ActionValue: "status"},
			fields:   []string{"actionValue"},
		},
		"button with blank entry": {
			nodeType: model.NODE_BUTTON,
			cfg:      model.NodeConfig{Message: "pick", Buttons: []string{"a", " "}},
			fields:   []string{"buttons"},
		},
		"input variable with spaces": {
			nodeType: model.NODE_INPUT,
			cfg:      model.NodeConfig{Variable: "first name"},
			fields:   []string{"variable"},
		},
		"end needs nothing": {
			nodeType: model.NODE_END,
			cfg:      model.NodeConfig{},
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			s, err := SchemaFor(tc.nodeType)
			require.NoError(t, err)
			var got []string
			for _, fe := range s.Validate(tc.cfg) {
				got = append(got, fe.Field)
			}
			require.ElementsMatch(t, tc.fields, got)
		})
	}
}

func TestValidateReasons(t *testing.T) {
	for scenario, tc := range map[string]struct {
		nodeType model.NodeType
		cfg      model.NodeConfig
		want     FieldError
	}{
		"operator lists options": {
			nodeType: model.NODE_CONDITION,
			cfg:      model.NodeConfig{Variable: "age", Operator: "between"},
			want:     FieldError{Field: "operator", Reason: "must be one of equals, not_equals, contains, not_contains, greater, less"},
		},
		"delay bound": {
			nodeType: model.NODE_DELAY,
			cfg:      model.NodeConfig{Delay: -1},
			want:     FieldError{Field: "delay", Reason: "must be greater than 0"},
		},
		"blank list item names its index": {
			nodeType: model.NODE_LIST,
			cfg:      model.NodeConfig{Title: "menu", ListItems: []string{"tea", "coffee", ""}},
			want:     FieldError{Field: "listItems", Reason: "entry 2 is empty"},
		},
		"relative image url": {
			nodeType: model.NODE_IMAGE,
			cfg:      model.NodeConfig{URL: "/static/cat.png"},
			want:     FieldError{Field: "url", Reason: "must be an absolute url"},
		},
		"save_database needs assignment": {
			nodeType: model.NODE_ACTION,
			cfg:      model.NodeConfig{ActionType: model.ACTION_SAVE_DATABASE, ActionValue: "orders"},
			want:     FieldError{Field: "actionValue", Reason: "must have the form name=value"},
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			s, err := SchemaFor(tc.nodeType)
			require.NoError(t, err)
			require.Equal(t, []FieldError{tc.want}, s.Validate(tc.cfg))
		})
	}
}

func TestEnumFieldsCarryRules(t *testing.T) {
	for _, nt := range Types() {
		s, err := SchemaFor(nt)
		require.NoError(t, err)
		for _, f := range s.Fields {
			if f.Kind == KIND_ENUM {
				require.Equal(t, oneOf(f.Options), f.Rules, "%s.%s", nt, f.Name)
			}
		}
	}
}
