package record

// Progress is the lifecycle state stored on a Record.
type Progress string

const (
	InProgress Progress = "IN_PROGRESS"
	Completed  Progress = "COMPLETED"

	// Released is only written by an operator repair. A released record is
	// present but inactive and can be claimed again.
	Released Progress = "RELEASED"
)

func (p Progress) String() string {
	return string(p)
}

// Active returns true when a record in this state must not be claimed again.
func (p Progress) Active() bool {
	return p == InProgress || p == Completed
}

// Record is the DynamoDB representation of a unit of idempotent work.
type Record struct {
	ID         string   `dynamodbav:"id" json:"id"`
	Payload    string   `dynamodbav:"json" json:"json"`
	Version    string   `dynamodbav:"version" json:"version"`
	Progress   Progress `dynamodbav:"progress" json:"progress"`
	ModifiedBy []string `dynamodbav:"modified_by,stringset,omitempty" json:"modified_by"`
}
