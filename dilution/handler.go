package dilution

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clarity-ext/dilution/dilution/trace"
)

// Env is the per-robot state shared by the handlers of one pipeline run.
// It is created fresh for every robot evaluation and never shared.
type Env struct {
	Settings *Settings
	Robot    RobotSettings
	Results  *ValidationResults
	Trace    *trace.EvaluationTrace

	inventory     *Inventory
	temps         *temporaryContainers
	usedTempWells map[WellRef]bool
	byOutput      map[WellRef][]*SingleTransfer
	nextID        int
}

func newEnv(settings *Settings, robot RobotSettings, inv *Inventory, temps *temporaryContainers, tr *trace.EvaluationTrace) *Env {
	return &Env{
		Settings:      settings,
		Robot:         robot,
		Results:       &ValidationResults{},
		Trace:         tr,
		inventory:     inv,
		temps:         temps,
		usedTempWells: make(map[WellRef]bool),
		byOutput:      make(map[WellRef][]*SingleTransfer),
	}
}

// calcContext adapts the env for a VolumeCalc.
func (e *Env) calcContext() CalcContext {
	return CalcContext{Settings: e.Settings, Robot: e.Robot, Results: e.Results}
}

// register indexes t by its target well so pool siblings can find each other.
func (e *Env) register(t *SingleTransfer) {
	e.byOutput[t.Target.Well] = append(e.byOutput[t.Target.Well], t)
	if t.ID >= e.nextID {
		e.nextID = t.ID + 1
	}
}

// TransfersByOutput returns all transfers dispensing into the target well, in input order.
func (e *Env) TransfersByOutput(ref WellRef) []*SingleTransfer {
	return e.byOutput[ref]
}

// newID hands out the next transfer identifier for derived transfers.
func (e *Env) newID() int {
	id := e.nextID
	e.nextID++
	return id
}

// TransferHandler is one stage of the transfer pipeline.
// Run always returns the transfers replacing t (at least t itself for
// non-splitting handlers). Validation problems go to env.Results; a
// returned error aborts the whole evaluation.
type TransferHandler interface {
	Name() string
	ShouldExecute(env *Env, t *SingleTransfer) bool
	Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error)
}

// OrTransferHandler tries its handlers in order and stops at the first one
// that executes and returns a non-empty result.
type OrTransferHandler struct {
	Handlers []TransferHandler
}

// Or combines handlers into an OrTransferHandler.
func Or(handlers ...TransferHandler) *OrTransferHandler {
	return &OrTransferHandler{Handlers: handlers}
}

func (o *OrTransferHandler) Name() string {
	name := "or("
	for i, h := range o.Handlers {
		if i > 0 {
			name += ","
		}
		name += h.Name()
	}
	return name + ")"
}

// ShouldExecute reports whether any sub-handler applies to t.
func (o *OrTransferHandler) ShouldExecute(env *Env, t *SingleTransfer) bool {
	for _, h := range o.Handlers {
		if h.ShouldExecute(env, t) {
			return true
		}
	}
	return false
}

func (o *OrTransferHandler) Run(env *Env, t *SingleTransfer) ([]*SingleTransfer, error) {
	for _, h := range o.Handlers {
		if !h.ShouldExecute(env, t) {
			continue
		}
		out, err := h.Run(env, t)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return []*SingleTransfer{t}, nil
}

// Pipeline is a strict left-to-right fold over handlers: the output list of
// one handler becomes the input list of the next.
type Pipeline struct {
	Handlers []TransferHandler
}

// NewPipeline creates a pipeline from handlers in execution order.
func NewPipeline(handlers ...TransferHandler) *Pipeline {
	return &Pipeline{Handlers: handlers}
}

// Run pushes transfers through every handler.
func (p *Pipeline) Run(env *Env, transfers []*SingleTransfer) ([]*SingleTransfer, error) {
	for _, t := range transfers {
		env.register(t)
	}
	current := transfers
	for _, h := range p.Handlers {
		next := make([]*SingleTransfer, 0, len(current))
		for _, t := range current {
			if !h.ShouldExecute(env, t) {
				next = append(next, t)
				continue
			}
			out, err := h.Run(env, t)
			if err != nil {
				return nil, fmt.Errorf("handler %s on transfer %d: %w", h.Name(), t.ID, err)
			}
			if len(out) != 1 || out[0] != t {
				logrus.Debugf("[%s] %s replaced transfer %d with %d transfer(s)", env.Robot.Name, h.Name(), t.ID, len(out))
			}
			next = append(next, out...)
		}
		current = next
	}
	return current, nil
}

// DefaultPipeline builds the standard chain: preconditions, calculation
// (pool, one-to-one or fixed), intermediate-dilution batch split, row split.
func DefaultPipeline() *Pipeline {
	return NewPipeline(
		PreconditionHandler{},
		Or(PoolCalcHandler{}, OneToOneCalcHandler{}, FixedVolumeCalcHandler{}),
		NewIntermediateDilutionHandler(),
		RowSplitHandler{},
	)
}
