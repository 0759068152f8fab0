package domain

// ActivityKind tags the shape of an Activity value returned by user code.
type ActivityKind string

const (
	ActivityKindSingle   ActivityKind = "SINGLE"
	ActivityKindParallel ActivityKind = "PARALLEL"
	ActivityKindSequence ActivityKind = "SEQUENCE"
	ActivityKindAny      ActivityKind = "ANY"
)

// Activity is a declarative description of further work, either a single
// callable target or a composition of further activities. It carries no
// job id — that is assigned when the converter turns it into a child Job.
type Activity struct {
	Kind ActivityKind `json:"kind"`

	// Single
	ActivityType string `json:"activity_type,omitempty"`
	Method       string `json:"method,omitempty"`
	Arguments    []byte `json:"arguments,omitempty"`

	// Parallel/Sequence/Any
	Children []Activity `json:"children,omitempty"`

	OnAnyFailed bool `json:"on_any_failed,omitempty"`
	OnAllFailed bool `json:"on_all_failed,omitempty"`
}

// Single builds a leaf Activity.
func Single(activityType, method string, args []byte) Activity {
	return Activity{Kind: ActivityKindSingle, ActivityType: activityType, Method: method, Arguments: args}
}

// Parallel composes activities that must all be dispatched together.
func Parallel(onAnyFailed bool, children ...Activity) Activity {
	return Activity{Kind: ActivityKindParallel, Children: children, OnAnyFailed: onAnyFailed}
}

// Sequence composes activities that must run one after another.
func Sequence(children ...Activity) Activity {
	return Activity{Kind: ActivityKindSequence, Children: children}
}

// AnyOf composes activities where the first completion wins.
func AnyOf(children ...Activity) Activity {
	return Activity{Kind: ActivityKindAny, Children: children}
}

// ResultKind tags which variant of Result a runtime returned.
type ResultKind string

const (
	ResultKindValue    ResultKind = "VALUE"
	ResultKindActivity ResultKind = "ACTIVITY"
	ResultKindError    ResultKind = "ERROR"
)

// Result is what the activity runtime returns for a dispatched job
// (spec.md §6): exactly one of Value, Activity, or Err is meaningful,
// selected by Kind.
type Result struct {
	Kind     ResultKind
	Value    []byte
	Activity *Activity
	Err      error
}

// ValueResult wraps a terminal successful value.
func ValueResult(v []byte) Result { return Result{Kind: ResultKindValue, Value: v} }

// ActivityResult wraps a returned activity graph — the job must now wait
// for children.
func ActivityResult(a Activity) Result { return Result{Kind: ResultKindActivity, Activity: &a} }

// ErrorResult wraps a user activity error.
func ErrorResult(err error) Result { return Result{Kind: ResultKindError, Err: err} }
