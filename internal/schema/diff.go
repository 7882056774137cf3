package schema

import (
	"notion-content-sync/internal/notion"
)

// ActionKind discriminates the corrective action variants.
type ActionKind string

const (
	ActionAdd        ActionKind = "add"
	ActionRename     ActionKind = "rename"
	ActionDelete     ActionKind = "delete"
	ActionTypeChange ActionKind = "type_change"
)

// Action is one corrective step required to reconcile the live schema with
// the descriptor. Computed once, consumed once to build a migration
// payload, then discarded.
type Action struct {
	Kind      ActionKind `json:"kind"`
	FieldName string     `json:"fieldName,omitempty"`
	FieldType FieldType  `json:"fieldType,omitempty"`
	FromName  string     `json:"fromName,omitempty"`
	ToName    string     `json:"toName,omitempty"`
	FromType  string     `json:"fromType,omitempty"`
	ToType    string     `json:"toType,omitempty"`
}

// ComputeDiff returns the ordered corrective actions that make the live
// schema match the expectations: per-expectation type changes, renames, and
// adds first, then deletes for live properties nothing references. The
// title property is never deleted; every data source has exactly one.
func ComputeDiff(expectations []FieldExpectation, currentProps []notion.DataSourceProperty, mapping FieldMapping) []Action {
	byName := make(map[string]notion.DataSourceProperty, len(currentProps))
	for _, p := range currentProps {
		byName[p.Name] = p
	}

	var actions []Action
	referenced := make(map[string]bool, len(expectations))

	for _, exp := range expectations {
		if exp.Type == TypeBuiltin {
			continue
		}
		target := exp.NotionField
		explicit := false
		if name, ok := mapping[exp.AppField]; ok && name != "" {
			target = name
			explicit = true
		}

		if live, ok := byName[target]; ok {
			referenced[target] = true
			if !exp.Type.Compatible(live.Type) {
				actions = append(actions, Action{
					Kind:      ActionTypeChange,
					FieldName: target,
					FromType:  live.Type,
					ToType:    exp.Type.ProviderType(),
					FieldType: exp.Type,
				})
			}
			continue
		}

		// Explicit target missing but the descriptor default still exists
		// live: rename rather than creating a duplicate column.
		if explicit {
			if _, ok := byName[exp.NotionField]; ok {
				referenced[exp.NotionField] = true
				actions = append(actions, Action{
					Kind:     ActionRename,
					FromName: exp.NotionField,
					ToName:   target,
				})
				continue
			}
		}

		referenced[target] = true
		actions = append(actions, Action{
			Kind:      ActionAdd,
			FieldName: target,
			FieldType: exp.Type,
		})
	}

	for _, p := range currentProps {
		if referenced[p.Name] || p.Type == notion.TypeTitle {
			continue
		}
		actions = append(actions, Action{Kind: ActionDelete, FieldName: p.Name})
	}
	return actions
}

// BuildMigrationPayload serializes diff actions into the provider's schema
// update document. Pure serialization, no network calls.
func BuildMigrationPayload(actions []Action) map[string]any {
	payload := make(map[string]any, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case ActionAdd:
			providerType := a.FieldType.ProviderType()
			payload[a.FieldName] = map[string]any{
				"type":       providerType,
				providerType: map[string]any{},
			}
		case ActionRename:
			payload[a.FromName] = map[string]any{"name": a.ToName}
		case ActionTypeChange:
			payload[a.FieldName] = map[string]any{
				"type":   a.ToType,
				a.ToType: map[string]any{},
			}
		case ActionDelete:
			payload[a.FieldName] = nil
		}
	}
	return payload
}
