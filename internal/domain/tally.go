package domain

// Tally counts answers per option for one question.
// It is seeded from the question's options so every option has a row, even at zero.
type Tally struct {
	questionID string
	rows       []AnswerDistribution
	index      map[string]int
	seen       map[string]struct{}
	total      int
}

// NewTally seeds a tally with one zero row per option, preserving option order.
func NewTally(q Question) *Tally {
	t := &Tally{
		questionID: q.ID,
		rows:       make([]AnswerDistribution, 0, len(q.Options)),
		index:      make(map[string]int, len(q.Options)),
		seen:       make(map[string]struct{}),
	}
	for i, o := range q.Options {
		t.rows = append(t.rows, AnswerDistribution{
			OptionID:   o.ID,
			OptionText: o.Text,
			IsCorrect:  o.IsCorrect,
		})
		t.index[o.ID] = i
	}
	return t
}

// Clone returns an independent copy of the tally.
func (t *Tally) Clone() *Tally {
	c := &Tally{
		questionID: t.questionID,
		rows:       t.Distribution(),
		index:      make(map[string]int, len(t.index)),
		seen:       make(map[string]struct{}, len(t.seen)),
		total:      t.total,
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	for k := range t.seen {
		c.seen[k] = struct{}{}
	}
	return c
}

// QuestionID returns the question this tally counts.
func (t *Tally) QuestionID() string {
	return t.questionID
}

// Add counts a single answer. Answers for other questions, unknown options,
// or answer ids already counted are ignored. It reports whether the tally changed.
func (t *Tally) Add(a Answer) bool {
	if a.QuestionID != t.questionID {
		return false
	}
	i, ok := t.index[a.OptionID]
	if !ok {
		return false
	}
	if a.ID != "" {
		if _, dup := t.seen[a.ID]; dup {
			return false
		}
		t.seen[a.ID] = struct{}{}
	}
	t.rows[i].Count++
	t.total++
	t.recompute()
	return true
}

// Load resets the tally and counts the given answers.
func (t *Tally) Load(answers []Answer) {
	for i := range t.rows {
		t.rows[i].Count = 0
		t.rows[i].Percentage = 0
	}
	t.seen = make(map[string]struct{}, len(answers))
	t.total = 0
	for _, a := range answers {
		t.Add(a)
	}
	t.recompute()
}

// Total is the number of answers counted.
func (t *Tally) Total() int {
	return t.total
}

// Distribution returns a copy of the per-option rows.
func (t *Tally) Distribution() []AnswerDistribution {
	out := make([]AnswerDistribution, len(t.rows))
	copy(out, t.rows)
	return out
}

// CorrectCount is the number of answers on the correct option.
func (t *Tally) CorrectCount() int {
	n := 0
	for _, r := range t.rows {
		if r.IsCorrect {
			n += r.Count
		}
	}
	return n
}

// CorrectPercentage is the share of answers that were correct.
func (t *Tally) CorrectPercentage() int {
	return Percent(t.CorrectCount(), t.total)
}

func (t *Tally) recompute() {
	for i := range t.rows {
		t.rows[i].Percentage = Percent(t.rows[i].Count, t.total)
	}
}
