package wizard

import (
	"context"
	"errors"
	"sync"

	"agriaid/crop"
)

// UpdateKind tags a progress update published to subscribers.
type UpdateKind string

const (
	UpdatePredicted  UpdateKind = "predicted"
	UpdateVisualized UpdateKind = "visualized"
	UpdateSkipped    UpdateKind = "skipped"
	UpdateDone       UpdateKind = "done"
	UpdateError      UpdateKind = "error"
	UpdateReset      UpdateKind = "reset"
)

// Update is one incremental change to the disease list.
type Update struct {
	Kind     UpdateKind         `json:"kind"`
	Index    int                `json:"index,omitempty"`
	Total    int                `json:"total,omitempty"`
	Disease  *crop.DiseaseInfo  `json:"disease,omitempty"`
	Diseases []crop.DiseaseInfo `json:"diseases,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// Snapshot is a copy of the session safe to hand to views.
type Snapshot struct {
	State          string             `json:"state"`
	UserData       *crop.UserData     `json:"user_data,omitempty"`
	Diseases       []crop.DiseaseInfo `json:"diseases"`
	Selected       *crop.DiseaseInfo  `json:"selected,omitempty"`
	Solution       *crop.SolutionInfo `json:"solution,omitempty"`
	Loading        bool               `json:"loading"`
	LoadingMessage string             `json:"loading_message,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Controller owns the wizard state machine and the session data shared by
// the three steps. Steps mutate it only through the fetch token setters,
// which become no-ops once the entry they were issued for has ended.
type Controller struct {
	mu sync.Mutex

	state          State
	userData       *crop.UserData
	diseases       []crop.DiseaseInfo
	selected       *crop.DiseaseInfo
	solution       *crop.SolutionInfo
	loading        bool
	loadingMessage string
	errMsg         string

	// entry increments on every transition; a fetch is bound to one entry.
	entry   uint64
	fetched map[State]uint64
	cancel  context.CancelFunc

	subs   map[int]chan Update
	nextID int
}

func NewController() *Controller {
	return &Controller{
		state:   UserInput,
		fetched: map[State]uint64{},
		subs:    map[int]chan Update{},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transitionLocked moves along ev, clears the error message and ends the
// previous step's fetch.
func (c *Controller) transitionLocked(ev event) error {
	to, ok := next(c.state, ev)
	if !ok {
		return ErrInvalidTransition
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = to
	c.entry++
	c.errMsg = ""
	c.loading = false
	c.loadingMessage = ""
	return nil
}

// Start stores the step-1 input and moves to DiseaseSelection. A validation
// failure is recorded as the session error and leaves the state unchanged.
func (c *Controller) Start(ud crop.UserData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := next(c.state, evStart); !ok {
		return ErrInvalidTransition
	}
	if err := ud.Validate(); err != nil {
		c.errMsg = err.Error()
		return err
	}
	if err := c.transitionLocked(evStart); err != nil {
		return err
	}
	stored := ud
	c.userData = &stored
	return nil
}

// RejectInput records a validation error raised before UserData could be built.
func (c *Controller) RejectInput(err error) {
	var ve *crop.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == UserInput {
		c.errMsg = ve.Message
	}
}

// Select picks a visualized candidate and moves to Solution. Candidates whose
// image is still pending (or failed) are rejected without a transition.
func (c *Controller) Select(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := next(c.state, evSelect); !ok {
		return ErrInvalidTransition
	}
	for _, d := range c.diseases {
		if d.Name != name {
			continue
		}
		if !d.Selectable() {
			return ErrNotSelectable
		}
		if err := c.transitionLocked(evSelect); err != nil {
			return err
		}
		sel := d
		c.selected = &sel
		return nil
	}
	return ErrNotSelectable
}

// Reset returns to UserInput from any state, cancels in-flight fetches and
// clears everything the session accumulated.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.transitionLocked(evReset)
	c.userData = nil
	c.diseases = nil
	c.selected = nil
	c.solution = nil
	c.fetched = map[State]uint64{}
	c.publishLocked(Update{Kind: UpdateReset})
}

// Close cancels any in-flight fetch and drops subscribers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:          c.state.String(),
		Diseases:       append([]crop.DiseaseInfo{}, c.diseases...),
		Loading:        c.loading,
		LoadingMessage: c.loadingMessage,
		Error:          c.errMsg,
	}
	if c.userData != nil {
		ud := *c.userData
		s.UserData = &ud
	}
	if c.selected != nil {
		sel := *c.selected
		s.Selected = &sel
	}
	if c.solution != nil {
		sol := *c.solution
		s.Solution = &sol
	}
	return s
}

// Subscribe returns a channel of progress updates and its cancel function.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan Update, 32)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
}

func (c *Controller) publishLocked(u Update) {
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// fetch is the capability a step receives for one state entry.
type fetch struct {
	c     *Controller
	entry uint64
	state State
}

// beginFetch hands out a fetch token when the controller is in want, no
// fetch has run for the current entry and the step has no data yet.
func (c *Controller) beginFetch(parent context.Context, want State) (*fetch, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want || c.fetched[want] == c.entry {
		return nil, nil, false
	}
	switch want {
	case DiseaseSelection:
		if len(c.diseases) > 0 || c.userData == nil {
			return nil, nil, false
		}
	case Solution:
		if c.solution != nil || c.selected == nil || c.userData == nil {
			return nil, nil, false
		}
	default:
		return nil, nil, false
	}
	c.fetched[want] = c.entry
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.loading = true
	c.errMsg = ""
	return &fetch{c: c, entry: c.entry, state: want}, ctx, true
}

// live must be called with c.mu held.
func (f *fetch) live() bool { return f.c.entry == f.entry && f.c.state == f.state }

func (f *fetch) setLoadingMessage(msg string) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return false
	}
	f.c.loadingMessage = msg
	return true
}

func (f *fetch) setDiseases(ds []crop.DiseaseInfo) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return false
	}
	f.c.diseases = append([]crop.DiseaseInfo{}, ds...)
	f.c.publishLocked(Update{Kind: UpdatePredicted, Total: len(ds), Diseases: append([]crop.DiseaseInfo{}, ds...)})
	return true
}

// setImage fills in one candidate's image, keyed by name.
func (f *fetch) setImage(index, total int, name, url string) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return false
	}
	for i := range f.c.diseases {
		if f.c.diseases[i].Name == name {
			f.c.diseases[i].ImageURL = url
			d := f.c.diseases[i]
			f.c.publishLocked(Update{Kind: UpdateVisualized, Index: index, Total: total, Disease: &d})
			return true
		}
	}
	return false
}

func (f *fetch) skip(index, total int, name string) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return
	}
	for i := range f.c.diseases {
		if f.c.diseases[i].Name == name {
			d := f.c.diseases[i]
			f.c.publishLocked(Update{Kind: UpdateSkipped, Index: index, Total: total, Disease: &d})
			return
		}
	}
}

func (f *fetch) setSolution(s crop.SolutionInfo) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return false
	}
	f.c.solution = &s
	return true
}

func (f *fetch) fail(msg string) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return
	}
	f.c.errMsg = msg
	f.c.publishLocked(Update{Kind: UpdateError, Message: msg})
}

// finish clears the loading flags and releases the fetch context.
func (f *fetch) finish() {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if !f.live() {
		return
	}
	f.c.loading = false
	f.c.loadingMessage = ""
	if f.c.cancel != nil {
		f.c.cancel()
		f.c.cancel = nil
	}
	if f.state == DiseaseSelection && f.c.errMsg == "" {
		f.c.publishLocked(Update{Kind: UpdateDone, Total: len(f.c.diseases), Diseases: append([]crop.DiseaseInfo{}, f.c.diseases...)})
	}
}

// inputs returns the data a step needs, read under the lock.
func (f *fetch) inputs() (crop.UserData, *crop.DiseaseInfo) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	var ud crop.UserData
	if f.c.userData != nil {
		ud = *f.c.userData
	}
	var sel *crop.DiseaseInfo
	if f.c.selected != nil {
		s := *f.c.selected
		sel = &s
	}
	return ud, sel
}
