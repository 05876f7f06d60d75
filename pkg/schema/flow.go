package schema

// Flow is the JSON-serializable flow definition: a trigger followed by a
// chain of actions.
type Flow struct {
	DisplayName string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Trigger     Trigger        `json:"trigger" yaml:"trigger"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Trigger starts a flow. Its output is supplied by the caller at run time and
// recorded under Name before the first action executes.
type Trigger struct {
	Name        string         `json:"name" yaml:"name"`
	DisplayName string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Type        string         `json:"type,omitempty" yaml:"type,omitempty"`
	Settings    map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	NextAction  *Action        `json:"nextAction,omitempty" yaml:"nextAction,omitempty"`
}

// Template namespaces. A step with one of these names could never be
// referenced, so they are reserved.
const (
	NamespaceConfigs     = "configs"
	NamespaceConnections = "connections"
)

// IsReservedName reports whether name is a template namespace.
func IsReservedName(name string) bool {
	return name == NamespaceConfigs || name == NamespaceConnections
}

// ActionType enumerates the kinds of actions in a flow.
type ActionType string

const (
	ActionTypePiece   ActionType = "PIECE"
	ActionTypeLoop    ActionType = "LOOP_ON_ITEMS"
	ActionTypeStorage ActionType = "STORAGE"
	ActionTypeBranch  ActionType = "BRANCH"
	ActionTypeCode    ActionType = "CODE"
)

// ActionTypes lists every action kind the engine knows how to execute.
var ActionTypes = []ActionType{
	ActionTypePiece,
	ActionTypeLoop,
	ActionTypeStorage,
	ActionTypeBranch,
	ActionTypeCode,
}

// Action is one configured step. NextAction links the following action in
// the same scope; FirstLoopAction, OnSuccessAction and OnFailureAction start
// the nested chains owned by loops and branches.
type Action struct {
	Name            string         `json:"name" yaml:"name"`
	DisplayName     string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Type            ActionType     `json:"type" yaml:"type"`
	Settings        map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	NextAction      *Action        `json:"nextAction,omitempty" yaml:"nextAction,omitempty"`
	FirstLoopAction *Action        `json:"firstLoopAction,omitempty" yaml:"firstLoopAction,omitempty"`
	OnSuccessAction *Action        `json:"onSuccessAction,omitempty" yaml:"onSuccessAction,omitempty"`
	OnFailureAction *Action        `json:"onFailureAction,omitempty" yaml:"onFailureAction,omitempty"`
}

// PieceSettings configures a PIECE action.
type PieceSettings struct {
	PieceName  string         `mapstructure:"pieceName"`
	ActionName string         `mapstructure:"actionName"`
	Input      map[string]any `mapstructure:"input"`
}

// LoopSettings configures a LOOP_ON_ITEMS action. Items is usually a
// template such as "${trigger.items}".
type LoopSettings struct {
	Items any `mapstructure:"items"`
}

// StorageOperation enumerates the operations of a STORAGE action.
type StorageOperation string

const (
	StorageGet StorageOperation = "GET"
	StoragePut StorageOperation = "PUT"
)

// StorageSettings configures a STORAGE action.
type StorageSettings struct {
	Operation StorageOperation `mapstructure:"operation"`
	Key       string           `mapstructure:"key"`
	Value     any              `mapstructure:"value"`
}

// BranchSettings configures a BRANCH action. Condition is a CEL expression
// over the variables configs and steps.
type BranchSettings struct {
	Condition string `mapstructure:"condition"`
}

// CodeSettings configures a CODE action.
type CodeSettings struct {
	Language string         `mapstructure:"language"` // expr | jq (default: expr)
	Script   string         `mapstructure:"script"`
	Input    map[string]any `mapstructure:"input"`
}
