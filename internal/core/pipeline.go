package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mcu-image-pipeline/internal/algorithms"
	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/metrics"
	"mcu-image-pipeline/internal/transport"
)

// ErrIdle is returned by Step once every stage has been attempted.
var ErrIdle = errors.New("pipeline idle")

// Outcome is how a stage attempt ended.
type Outcome string

const (
	OutcomeProcessed      Outcome = "processed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeReceiveFailed  Outcome = "receive_failed"
	OutcomeProcessFailed  Outcome = "process_failed"
	OutcomeTransmitFailed Outcome = "transmit_failed"
)

// StageReport describes one attempted stage.
type StageReport struct {
	Stage    Stage
	Outcome  Outcome
	Stats    algorithms.Stats
	Duration time.Duration
	Err      error
}

// Threshold returns the binarization level the stage selected, if any.
func (r StageReport) Threshold() (uint8, bool) {
	v, ok := r.Stats["threshold"]
	return uint8(v), ok
}

// Config fixes the device's memory bound and frame shape.
type Config struct {
	MaxWidth    int
	MaxHeight   int
	FrameWidth  int
	FrameHeight int
	KernelSize  int
}

// Controller runs the stages in order, one poll each, then idles until Reset.
// It is not safe for concurrent use.
type Controller struct {
	cfg       Config
	link      transport.Link
	logger    logrus.FieldLogger
	recorder  metrics.Recorder
	workspace *buffer.Workspace
	slots     map[string]buffer.Slot
	registry  *algorithms.Registry
	plans     []StagePlan
	cursor    Stage
}

// NewController allocates the workspace and checks that a frame fits every
// slot. A nil recorder disables metrics.
func NewController(cfg Config, link transport.Link, logger logrus.FieldLogger, recorder metrics.Recorder) (*Controller, error) {
	if err := algorithms.ValidateKernelSize("new controller", cfg.KernelSize); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	ws, err := buffer.NewWorkspace(cfg.MaxWidth, cfg.MaxHeight)
	if err != nil {
		return nil, err
	}

	slots := make(map[string]buffer.Slot, len(slotOrder))
	for _, name := range slotOrder {
		slot, err := ws.Allocate(name, slotEncodings[name])
		if err != nil {
			return nil, err
		}
		if _, err := ws.Bind(slot, cfg.FrameWidth, cfg.FrameHeight, slotEncodings[name]); err != nil {
			return nil, fmt.Errorf("frame %dx%d: %w", cfg.FrameWidth, cfg.FrameHeight, err)
		}
		slots[name] = slot
	}

	scratch, err := ws.Region(slots[SlotTemp])
	if err != nil {
		return nil, err
	}

	registry := algorithms.NewDefaultRegistry(scratch)
	plans := DefaultPlans(cfg.KernelSize)
	if err := validatePlans(plans, registry); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		link:      link,
		logger:    logger,
		recorder:  recorder,
		workspace: ws,
		slots:     slots,
		registry:  registry,
		plans:     plans,
	}

	logger.WithFields(logrus.Fields{
		"frame":          fmt.Sprintf("%dx%d", cfg.FrameWidth, cfg.FrameHeight),
		"workspace_size": ws.TotalBytes(),
		"kernel_size":    cfg.KernelSize,
	}).Info("Controller ready")

	return c, nil
}

// Current returns the stage the next Step will attempt.
func (c *Controller) Current() Stage { return c.cursor }

// Done reports whether the controller is idle.
func (c *Controller) Done() bool { return c.cursor == StageIdle }

// Plans returns the stage plans in execution order.
func (c *Controller) Plans() []StagePlan { return c.plans }

// SlotInfo describes one region of the controller's workspace.
type SlotInfo struct {
	Name     string
	Encoding buffer.Encoding
	Capacity int
}

// Layout lists the workspace regions in allocation order.
func (c *Controller) Layout() []SlotInfo {
	layout := make([]SlotInfo, 0, len(slotOrder))
	for _, name := range slotOrder {
		slot := c.slots[name]
		layout = append(layout, SlotInfo{
			Name:     c.workspace.Name(slot),
			Encoding: slotEncodings[name],
			Capacity: c.workspace.Capacity(slot),
		})
	}
	return layout
}

// Reset moves the cursor back to the first stage.
func (c *Controller) Reset() {
	c.logger.WithField("from", c.cursor.String()).Info("Controller reset")
	c.cursor = StageOtsuGray
}

// Step attempts the current stage once and advances the cursor. Stage
// failures are reported in the StageReport; the returned error is ErrIdle at
// the terminal stage or the context error if ctx is done before the stage
// starts.
func (c *Controller) Step(ctx context.Context) (StageReport, error) {
	if c.cursor == StageIdle {
		return StageReport{Stage: StageIdle}, ErrIdle
	}
	if err := ctx.Err(); err != nil {
		return StageReport{Stage: c.cursor}, err
	}

	plan := c.plans[c.cursor]
	start := time.Now()
	report := c.runStage(ctx, plan)
	report.Duration = time.Since(start)

	c.recorder.ObserveStage(plan.Stage.String(), string(report.Outcome), report.Duration)
	if level, ok := report.Threshold(); ok {
		c.recorder.ObserveThreshold(plan.Stage.String(), float64(level))
	}

	c.cursor = c.cursor.Next()
	return report, nil
}

// Run steps through every remaining stage and returns their reports.
func (c *Controller) Run(ctx context.Context) ([]StageReport, error) {
	var reports []StageReport
	for {
		report, err := c.Step(ctx)
		if errors.Is(err, ErrIdle) {
			c.logger.WithField("stages", len(reports)).Info("Pipeline finished, idling")
			return reports, nil
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
}

func (c *Controller) runStage(ctx context.Context, plan StagePlan) StageReport {
	report := StageReport{Stage: plan.Stage}
	log := c.logger.WithField("stage", plan.Stage.String())

	bindings, err := c.bind(plan)
	if err != nil {
		log.WithError(err).Error("Failed to bind workspace slots")
		report.Outcome, report.Err = OutcomeProcessFailed, err
		return report
	}

	err = c.link.TryReceive(ctx, bindings[plan.Receive].Image)
	switch {
	case errors.Is(err, transport.ErrNoFrame):
		log.Debug("No frame, stage skipped")
		report.Outcome = OutcomeSkipped
		return report
	case err != nil:
		log.WithError(err).Warn("Receive failed, stage skipped")
		report.Outcome, report.Err = OutcomeReceiveFailed, err
		return report
	}

	// Every slot is bound once above and the steps run in order, so each
	// region has exactly one writer at a time. validatePlans guarantees that
	// each step reads a slot that is already filled.
	for _, step := range plan.Steps {
		in, out := bindings[step.Input], bindings[step.Output]
		stats, err := c.registry.Apply(step.Algorithm, in.Image, out.Image, step.Parameters)
		if err != nil {
			log.WithError(err).WithField("algorithm", step.Algorithm).Error("Processing step failed, result not sent")
			report.Outcome, report.Err = OutcomeProcessFailed, err
			return report
		}
		for k, v := range stats {
			if report.Stats == nil {
				report.Stats = algorithms.Stats{}
			}
			report.Stats[k] = v
		}
	}

	if err := c.link.Transmit(ctx, bindings[plan.Transmit].Image); err != nil {
		log.WithError(err).Warn("Transmit failed, frame lost")
		report.Outcome, report.Err = OutcomeTransmitFailed, err
		return report
	}

	fields := logrus.Fields{"outcome": OutcomeProcessed}
	if level, ok := report.Threshold(); ok {
		fields["threshold"] = level
	}
	log.WithFields(fields).Info("Stage complete")

	report.Outcome = OutcomeProcessed
	return report
}

// validatePlans rejects plans that name an unknown slot or operation, carry
// invalid parameters, or read a slot before the stage has filled it.
func validatePlans(plans []StagePlan, registry *algorithms.Registry) error {
	for _, plan := range plans {
		for _, name := range []string{plan.Receive, plan.Transmit} {
			if _, ok := slotEncodings[name]; !ok {
				return fmt.Errorf("stage %s: unknown slot %q", plan.Stage, name)
			}
		}

		filled := map[string]bool{plan.Receive: true}
		for _, step := range plan.Steps {
			if !registry.IsValidAlgorithm(step.Algorithm) {
				return fmt.Errorf("stage %s: unknown operation %q", plan.Stage, step.Algorithm)
			}
			if err := registry.ValidateParameters(step.Algorithm, step.Parameters); err != nil {
				return fmt.Errorf("stage %s: %w", plan.Stage, err)
			}
			if _, ok := slotEncodings[step.Output]; !ok {
				return fmt.Errorf("stage %s: unknown slot %q", plan.Stage, step.Output)
			}
			if !filled[step.Input] {
				return fmt.Errorf("stage %s: %s reads slot %q before it is filled", plan.Stage, step.Algorithm, step.Input)
			}
			filled[step.Output] = true
		}
		if !filled[plan.Transmit] {
			return fmt.Errorf("stage %s: transmits slot %q that is never filled", plan.Stage, plan.Transmit)
		}
	}
	return nil
}

// bind gives the stage a fresh descriptor over each slot it touches.
func (c *Controller) bind(plan StagePlan) (map[string]buffer.Binding, error) {
	names := plan.slots()
	bindings := make(map[string]buffer.Binding, len(names))
	for _, name := range names {
		slot, ok := c.slots[name]
		if !ok {
			return nil, fmt.Errorf("unknown slot %q", name)
		}
		b, err := c.workspace.Bind(slot, c.cfg.FrameWidth, c.cfg.FrameHeight, slotEncodings[name])
		if err != nil {
			return nil, err
		}
		bindings[name] = b
	}
	return bindings, nil
}
