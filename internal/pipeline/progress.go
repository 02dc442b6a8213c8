package pipeline

import (
	"fmt"
	"sync"
)

// Step labels shown in the live progress message.
const (
	stepFetching = "получение данных"
	stepWriting  = "создание таблиц"
	stepDone     = "готово"
)

var ellipsisFrames = []string{"", ".", "..", "..."}

// Progress holds the transient counters of the active run. It is owned by
// the [Runner] and shared by reference with the progress ticker only; it is
// discarded when the run ends.
type Progress struct {
	mu        sync.Mutex
	total     int
	completed int
	created   int
	url       string
	date      string
	step      string
	frame     int
}

// NewProgress returns a Progress for a run over total URLs.
func NewProgress(total int) *Progress {
	return &Progress{total: total}
}

// SetCurrent records the URL and date being processed.
func (p *Progress) SetCurrent(url, date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.date = url, date
}

// SetStep records the current step label.
func (p *Progress) SetStep(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step = step
}

// AddCreated adds n to the created-tables counter.
func (p *Progress) AddCreated(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created += n
}

// URLDone advances the completed-URLs counter.
func (p *Progress) URLDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

// Counts reports the run counters.
func (p *Progress) Counts() (completed, total, created int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.total, p.created
}

// Text renders the live progress message and advances the ellipsis
// animation by one frame.
func (p *Progress) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	dots := ellipsisFrames[p.frame%len(ellipsisFrames)]
	p.frame++
	return fmt.Sprintf(
		"⏳ Идёт работа%s\n\nURL: %s\nДата: %s\nШаг: %s\nОбработано URL: %d из %d\nТаблиц создано: %d",
		dots, p.url, p.date, p.step, p.completed, p.total, p.created,
	)
}
