package dilution

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clarity-ext/dilution/dilution/metrics"
	"github.com/clarity-ext/dilution/dilution/trace"
)

// Session evaluates one step's artifact pairs for every configured robot.
// A session owns all of its mutable state and must not be shared between
// goroutines; create one session per concurrent unit of work.
type Session struct {
	// Pipeline is the handler chain applied per robot. Defaults to DefaultPipeline().
	Pipeline *Pipeline

	settings *Settings
	metrics  *metrics.Metrics
	trace    *trace.EvaluationTrace

	inv         *Inventory
	temps       *temporaryContainers
	collections map[string]*TransferBatchCollection
	results     map[string]ValidationResults
	failures    map[string]*UsageError
	evaluated   bool
}

// NewSession validates settings and creates a session holding a private copy
// of them. m and tr may be nil.
func NewSession(settings *Settings, m *metrics.Metrics, tr *trace.EvaluationTrace) (*Session, error) {
	if settings == nil {
		return nil, fmt.Errorf("dilution settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dilution settings: %w", err)
	}
	return &Session{
		Pipeline: DefaultPipeline(),
		settings: settings.clone(),
		metrics:  m,
		trace:    tr,
	}, nil
}

// Settings returns the session's copy of the settings.
func (s *Session) Settings() *Settings {
	return s.settings
}

// Evaluate recomputes the transfer batches of every robot from the pairs of
// source. Each call starts from scratch: temporary containers and the trace
// of a previous call are discarded.
//
// Validation problems do not stop the evaluation of other transfers or
// robots. When any robot has ERROR entries, Evaluate returns the joined
// *UsageError values after all robots have been evaluated; batches and
// results stay available for inspection. Any other error aborts the call
// and leaves the session unevaluated.
func (s *Session) Evaluate(source PairSource) error {
	start := time.Now()
	defer func() { s.metrics.ObserveEvaluateLatency(time.Since(start)) }()

	s.evaluated = false
	pairs, err := source.Pairs()
	if err != nil {
		return fmt.Errorf("reading artifact pairs: %w", err)
	}
	inv := source.Inventory()
	if inv == nil {
		return fmt.Errorf("pair source has no inventory")
	}
	if s.temps != nil {
		s.temps.reset()
	}
	s.inv = inv
	s.temps = newTemporaryContainers(inv)
	s.trace.Reset()

	s.collections = make(map[string]*TransferBatchCollection, len(s.settings.Robots))
	s.results = make(map[string]ValidationResults, len(s.settings.Robots))
	s.failures = make(map[string]*UsageError)

	var usageErrs []error
	for _, robot := range s.settings.Robots {
		collection, results, err := s.evaluateRobot(robot, pairs)
		if err != nil {
			return fmt.Errorf("evaluating robot %s: %w", robot.Name, err)
		}
		s.collections[robot.Name] = collection
		s.results[robot.Name] = results

		outcome := "ok"
		if results.HasErrors() {
			outcome = "invalid"
			uerr := &UsageError{Robot: robot.Name, Results: results}
			s.failures[robot.Name] = uerr
			usageErrs = append(usageErrs, uerr)
		}
		s.metrics.IncrementEvaluation(robot.Name, outcome)
		s.metrics.AddValidationIssues(robot.Name, string(SeverityError), len(results.Errors()))
		s.metrics.AddValidationIssues(robot.Name, string(SeverityWarning), len(results.Warnings()))
		s.metrics.AddBatches(robot.Name, collection.Len())
		for _, w := range results.Warnings() {
			logrus.Warnf("[%s] %s", robot.Name, w)
		}
		logrus.Infof("[%s] %d transfer(s) in %d batch(es), %d error(s), %d warning(s)",
			robot.Name, len(collection.Transfers()), collection.Len(), len(results.Errors()), len(results.Warnings()))
	}
	s.evaluated = true
	return errors.Join(usageErrs...)
}

func (s *Session) evaluateRobot(robot RobotSettings, pairs []ArtifactPair) (*TransferBatchCollection, ValidationResults, error) {
	transfers := s.buildTransfers(pairs)
	env := newEnv(s.settings, robot, s.inv, s.temps, s.trace)
	out, err := s.Pipeline.Run(env, transfers)
	if err != nil {
		return nil, ValidationResults{}, err
	}

	var keys []string
	groups := make(map[string][]*SingleTransfer)
	for _, t := range out {
		if _, ok := groups[t.BatchKey]; !ok {
			keys = append(keys, t.BatchKey)
		}
		groups[t.BatchKey] = append(groups[t.BatchKey], t)
		s.metrics.AddTransfers(robot.Name, string(t.SplitType), 1)
	}

	results := *env.Results
	positioner := NewPositioner(robot, s.inv)
	batches := make([]*TransferBatch, 0, len(keys))
	for _, key := range keys {
		b, err := NewTransferBatch(key, groups[key], positioner)
		if err != nil {
			return nil, ValidationResults{}, err
		}
		b.validate(robot)
		results.Merge(b.results)
		for _, slot := range append(b.SourceSlots(), b.TargetSlots()...) {
			s.trace.RecordSlot(trace.SlotRecord{
				Robot: robot.Name, BatchKey: key, Container: string(slot.Container),
				Slot: slot.Name, Index: slot.Index, IsSource: slot.IsSource,
			})
			logrus.Debugf("[%s] batch %s: %s -> slot %s (%d)", robot.Name, key, slot.Container, slot.Name, slot.Index)
		}
		batches = append(batches, b)
	}
	return newTransferBatchCollection(robot, batches), results, nil
}

// buildTransfers creates one primary transfer per pair, numbered in pair
// order. Endpoints are rebuilt per robot because handlers mutate transfers.
func (s *Session) buildTransfers(pairs []ArtifactPair) []*SingleTransfer {
	poolSize := make(map[WellRef]int)
	for _, p := range pairs {
		if !p.Source.IsControl && !p.Target.IsControl {
			poolSize[p.Target.Location]++
		}
	}
	transfers := make([]*SingleTransfer, len(pairs))
	for i, p := range pairs {
		src := NewTransferEndpoint(p.Source, s.settings.ConcentrationUnit)
		tgt := NewTransferEndpoint(p.Target, s.settings.ConcentrationUnit)
		t := NewSingleTransfer(i+1, src, tgt)
		if n := poolSize[p.Target.Location]; n > 1 && !t.IsControl() {
			t.PoolSize = n
		}
		transfers[i] = t
	}
	return transfers
}

// TransferBatches returns the batch collection of robot.
func (s *Session) TransferBatches(robot string) (*TransferBatchCollection, error) {
	if !s.evaluated {
		return nil, ErrNotEvaluated
	}
	c, ok := s.collections[robot]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRobot, robot)
	}
	return c, nil
}

// Results returns the validation entries of robot.
func (s *Session) Results(robot string) (ValidationResults, error) {
	if !s.evaluated {
		return ValidationResults{}, ErrNotEvaluated
	}
	r, ok := s.results[robot]
	if !ok {
		return ValidationResults{}, fmt.Errorf("%w: %q", ErrUnknownRobot, robot)
	}
	return r, nil
}

// Warnings returns the WARNING entries of every robot in configuration order.
func (s *Session) Warnings() []ValidationException {
	var out []ValidationException
	for _, name := range s.settings.RobotNames() {
		out = append(out, s.results[name].Warnings()...)
	}
	return out
}

// SingleRobotTransferBatchesForUpdate returns the batches whose numbers are
// written back upstream. With an explicit robot name that robot is used as
// is. With an empty name the first configured robot is canonical and every
// other robot must agree with it on the number of batches and, per target
// analyte, on the source volume deltas; otherwise ErrInconsistentRobots is
// returned and the caller has to pick a robot.
func (s *Session) SingleRobotTransferBatchesForUpdate(robot string) (*TransferBatchCollection, error) {
	if !s.evaluated {
		return nil, ErrNotEvaluated
	}
	if robot != "" {
		c, err := s.TransferBatches(robot)
		if err != nil {
			return nil, err
		}
		if uerr := s.failures[robot]; uerr != nil {
			return nil, uerr
		}
		return c, nil
	}

	names := s.settings.RobotNames()
	canonical := s.collections[names[0]]
	if uerr := s.failures[names[0]]; uerr != nil {
		return nil, uerr
	}
	want := updateInfosByTargetAnalyte(canonical)
	for _, name := range names[1:] {
		other := s.collections[name]
		if other.Len() != canonical.Len() {
			s.metrics.IncrementConsistencyFailure()
			return nil, fmt.Errorf("%w: %s produces %d batch(es), %s produces %d",
				ErrInconsistentRobots, names[0], canonical.Len(), name, other.Len())
		}
		if err := compareSourceDeltas(want, updateInfosByTargetAnalyte(other)); err != nil {
			s.metrics.IncrementConsistencyFailure()
			return nil, fmt.Errorf("%w: %s vs %s: %v", ErrInconsistentRobots, names[0], name, err)
		}
	}
	return canonical, nil
}

func compareSourceDeltas(want, got map[string]UpdateInfo) error {
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	for id := range got {
		if _, ok := want[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		w, g := want[id].SourceDeltas, got[id].SourceDeltas
		if len(w) != len(g) {
			return fmt.Errorf("target %s has %d source delta(s) vs %d", id, len(w), len(g))
		}
		for src, dw := range w {
			dg, ok := g[src]
			if !ok || math.Abs(dw-dg) > volumeEpsilon {
				return fmt.Errorf("target %s: source %s delta %.1f vs %.1f", id, src, dw, dg)
			}
		}
	}
	return nil
}

// EnumerateTransfersForUpdate returns the primary, calculated, non-control
// transfers of the update robot ordered by transfer ID.
func (s *Session) EnumerateTransfersForUpdate(robot string) ([]*SingleTransfer, error) {
	c, err := s.SingleRobotTransferBatchesForUpdate(robot)
	if err != nil {
		return nil, err
	}
	return transfersForUpdate(c), nil
}

// UpdateInfosByTargetAnalyte returns the write-back of the update robot keyed
// by target artifact ID.
func (s *Session) UpdateInfosByTargetAnalyte(robot string) (map[string]UpdateInfo, error) {
	c, err := s.SingleRobotTransferBatchesForUpdate(robot)
	if err != nil {
		return nil, err
	}
	return updateInfosByTargetAnalyte(c), nil
}

// PushUpdates hands the update infos of the update robot to sink.
func (s *Session) PushUpdates(sink UpdateSink, robot string) error {
	updates, err := s.UpdateInfosByTargetAnalyte(robot)
	if err != nil {
		return err
	}
	if err := sink.Apply(updates); err != nil {
		return fmt.Errorf("applying %d update(s): %w", len(updates), err)
	}
	logrus.Infof("pushed %d update(s)", len(updates))
	return nil
}
