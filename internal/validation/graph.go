package validation

import (
	"fmt"

	"github.com/rendis/stepflow/pkg/schema"
)

// located is an action together with its position in the flow.
type located struct {
	action *schema.Action
	path   string
}

// actionPath names an action for issue reporting.
func actionPath(a *schema.Action, fallback string) string {
	if a.Name == "" {
		return fallback
	}
	return "actions." + a.Name
}

// validateGraph walks every chain reachable from the trigger in execution
// order. It rejects shared or cyclic action nodes, duplicate names and
// nested chains hung on the wrong action kind. The returned list holds each
// action once and is safe to iterate without recursion.
func validateGraph(flow *schema.Flow) ([]located, *schema.ValidationResult) {
	result := schema.NewValidationResult(schema.StageGraph)

	names := map[string]string{flow.Trigger.Name: "trigger"}
	if schema.IsReservedName(flow.Trigger.Name) {
		result.AddError("trigger.name", schema.ErrCodeValidation,
			fmt.Sprintf("name %q is reserved for templates", flow.Trigger.Name))
	}
	seen := make(map[*schema.Action]string)
	var actions []located

	type pending struct {
		action *schema.Action
		path   string
	}
	// Depth-first, so the list follows the order a run would visit actions.
	stack := []pending{{flow.Trigger.NextAction, "trigger.nextAction"}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a := top.action
		if a == nil {
			continue
		}

		if first, ok := seen[a]; ok {
			result.AddError(top.path, schema.ErrCodeValidation,
				fmt.Sprintf("action node already used at %s; chains must not share or loop back to actions", first))
			continue
		}
		path := actionPath(a, top.path)
		seen[a] = path

		if schema.IsReservedName(a.Name) {
			result.AddError(path+".name", schema.ErrCodeValidation,
				fmt.Sprintf("name %q is reserved for templates", a.Name))
		}
		if a.Name != "" {
			if prev, dup := names[a.Name]; dup {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("duplicate action name %q (also used by %s)", a.Name, prev))
			} else {
				names[a.Name] = top.path
			}
		}

		if a.FirstLoopAction != nil && a.Type != schema.ActionTypeLoop {
			result.AddError(path+".firstLoopAction", schema.ErrCodeValidation,
				fmt.Sprintf("firstLoopAction is only allowed on %s actions", schema.ActionTypeLoop))
		}
		if (a.OnSuccessAction != nil || a.OnFailureAction != nil) && a.Type != schema.ActionTypeBranch {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("onSuccessAction and onFailureAction are only allowed on %s actions", schema.ActionTypeBranch))
		}

		actions = append(actions, located{action: a, path: path})

		// Pushed in reverse so nested chains are visited before the next sibling.
		stack = append(stack,
			pending{a.NextAction, path + ".nextAction"},
			pending{a.OnFailureAction, path + ".onFailureAction"},
			pending{a.OnSuccessAction, path + ".onSuccessAction"},
			pending{a.FirstLoopAction, path + ".firstLoopAction"},
		)
	}

	return actions, result
}
