package dispatch

type ParamType string

const (
	String ParamType = "string"
	Number ParamType = "number"
)

// Param describes one payload field. Name is the field's JSON key.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

type Spec struct {
	Kind        Kind
	Description string
	Params      []Param
}

func str(name, desc string) Param { return Param{Name: name, Type: String, Description: desc} }
func num(name, desc string) Param { return Param{Name: name, Type: Number, Description: desc} }

func must(p Param) Param {
	p.Required = true
	return p
}

func taskIDParam() Param        { return must(str("taskId", "Task ID")) }
func applicationIDParam() Param { return must(str("applicationId", "Application ID")) }

func detailParams() []Param {
	return []Param{
		str("message", "Cover message to the poster (max 2000 chars)"),
		str("relevantExperience", "Relevant tickets and experience"),
		str("availabilityInfo", "When the applicant is available"),
		num("proposedRate", "Proposed hourly rate"),
	}
}

func taskParams() []Param {
	return []Param{
		must(str("title", "Task title (max 200 chars)")),
		str("description", "Task description"),
		num("hourlyRate", "Hourly rate offered"),
		num("estimatedHours", "Estimated hours of work"),
		str("currency", "Currency (USD|AUD|CAD|GBP|EUR, default USD)"),
		num("maxApplicants", "Maximum number of active applications"),
	}
}

// Specs describes the payload of every kind, in the order tools are listed.
var Specs = []Spec{
	{KindRegisterActor, "Record the caller's role on their actor profile.", nil},
	{KindGetActor, "Get an actor's counters and average rating.", []Param{str("actorId", "Actor ID (defaults to the caller)")}},
	{KindPostTask, "Post a new task. Requesters only.", taskParams()},
	{KindUpdateTask, "Edit an open task. Only its poster may edit it.", append([]Param{taskIDParam()}, taskParams()...)},
	{KindGetTask, "Get a task by ID.", []Param{taskIDParam()}},
	{KindListTasks, "List tasks with optional filters.", []Param{
		str("posterId", "Only tasks posted by this actor"),
		str("assigneeId", "Only tasks assigned to this actor"),
		str("status", "Comma separated statuses (open|assigned|in_progress|completed|cancelled)"),
		str("paymentStatus", "Payment status (unbilled|pending|escrowed|paid)"),
		num("limit", "Maximum number of tasks to return"),
		num("offset", "Number of tasks to skip"),
	}},
	{KindCancelTask, "Cancel a task that is not completed. Only its poster may cancel it.", []Param{taskIDParam(), str("reason", "Cancellation reason")}},
	{KindStartTask, "Start an assigned task. Only the assignee may start it.", []Param{taskIDParam()}},
	{KindCompleteTask, "Complete an in-progress task. Only the assignee may complete it.", []Param{
		taskIDParam(),
		str("completionNotes", "Notes for the poster"),
		num("actualHours", "Hours actually worked"),
	}},
	{KindSubmitApplication, "Apply to an open task. Workers only, once per task.", append([]Param{taskIDParam()}, detailParams()...)},
	{KindUpdateApplication, "Edit a pending application.", append([]Param{applicationIDParam()}, detailParams()...)},
	{KindWithdrawApplication, "Withdraw a pending application.", []Param{applicationIDParam()}},
	{KindReviewApplication, "Accept or reject a pending application. Accepting rejects every other pending application.", []Param{
		taskIDParam(),
		applicationIDParam(),
		must(str("decision", "accept or reject")),
		str("message", "Message to the applicant"),
	}},
	{KindTaskApplications, "List the applications of one of the caller's tasks.", []Param{taskIDParam()}},
	{KindMyApplications, "List the caller's applications.", []Param{str("status", "Comma separated statuses (pending|accepted|rejected|withdrawn)")}},
	{KindRateApplication, "Rate the worker of a completed task, once.", []Param{
		applicationIDParam(),
		must(num("rating", "Rating from 1 to 5")),
		str("review", "Review text (max 500 chars)"),
	}},
	{KindProcessPayment, "Pay for a completed task. Retrying never charges twice.", []Param{
		taskIDParam(),
		must(num("amount", "Amount for the work")),
		num("tip", "Optional tip"),
		str("currency", "Currency (defaults to the task currency)"),
		must(str("method", "credit_card, bank_transfer or escrow")),
	}},
	{KindReleaseEscrow, "Release an escrowed payment to the worker.", []Param{taskIDParam()}},
	{KindApplicationStats, "Application statistics for the caller.", nil},
	{KindPaymentStats, "Payment statistics for the caller.", nil},
}
