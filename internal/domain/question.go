package domain

// Question is either a single question or an ordered batch of questions.
type Question struct {
	items []string
	batch bool
}

// Single wraps one question.
func Single(q string) Question { return Question{items: []string{q}} }

// Batch wraps an ordered list of questions.
func Batch(qs ...string) Question {
	items := make([]string, len(qs))
	copy(items, qs)
	return Question{items: items, batch: true}
}

// IsBatch reports whether the question was built with Batch.
func (q Question) IsBatch() bool { return q.batch }

// Items returns the questions in input order.
func (q Question) Items() []string { return q.items }

// Answer mirrors the shape of the Question it answers.
type Answer struct {
	items []string
	batch bool
}

// AnswerFor builds an Answer with the same shape as q.
func AnswerFor(q Question, answers []string) Answer {
	return Answer{items: answers, batch: q.batch}
}

// IsBatch reports whether the answer corresponds to a batch question.
func (a Answer) IsBatch() bool { return a.batch }

// Text returns the single answer. For a batch it returns the first answer.
func (a Answer) Text() string {
	if len(a.items) == 0 {
		return ""
	}
	return a.items[0]
}

// Items returns all answers in question order.
func (a Answer) Items() []string { return a.items }

// PipelineResult aggregates the outputs of every analysis stage for one question.
// All fields are always populated, with a labelled placeholder when a stage failed.
type PipelineResult struct {
	Context        string `json:"context"`
	Contradictions string `json:"contradictions"`
	Actions        string `json:"actions"`
	PersonaSummary string `json:"persona_summary"`
	Answer         string `json:"answer"`
}
