// Package host implements the PC side of a device session: it answers the
// device's frame requests from image files and stores the returned results.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"mcu-image-pipeline/internal/algorithms"
	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/core"
	"mcu-image-pipeline/internal/metrics"
	"mcu-image-pipeline/internal/protocol"
)

// Source loads an image file as a raw frame of the requested shape.
type Source interface {
	Load(path string, width, height int, enc buffer.Encoding) ([]byte, error)
}

// Sink stores a frame returned by the device.
type Sink interface {
	Save(path string, img buffer.Image) error
}

// Files names the images sent to the device. Gray falls back to Color when
// empty. An empty Binary reuses the device's first binarized result.
type Files struct {
	Gray   string
	Color  string
	Binary string
}

// Result is one frame returned by the device.
type Result struct {
	Stage   core.Stage
	Path    string
	Header  protocol.Header
	Metrics map[string]float64
}

// Companion serves one device session over rw. It expects the device's
// stages in their fixed order and is not safe for concurrent use.
type Companion struct {
	rw        io.ReadWriter
	scanner   *protocol.Scanner
	source    Source
	sink      Sink
	files     Files
	outputDir string
	evaluator *metrics.Evaluator
	logger    logrus.FieldLogger

	resultTimeout time.Duration

	stages  []core.Stage
	next    int
	current core.Stage
	sent    *buffer.Image
	binary  []byte
	done    bool
}

func NewCompanion(rw io.ReadWriter, source Source, sink Sink, files Files, outputDir string, logger logrus.FieldLogger) *Companion {
	return &Companion{
		rw:        rw,
		scanner:   protocol.NewScanner(rw),
		source:    source,
		sink:      sink,
		files:     files,
		outputDir: outputDir,
		evaluator: metrics.NewEvaluator(),
		logger:    logger,
		stages:    core.Stages(),
		current:   core.StageIdle,
	}
}

// WithResultTimeout ends the session when no result follows the frame of the
// last stage within d, e.g. because the device failed to process it. Zero
// waits for as long as the link stays open.
func (c *Companion) WithResultTimeout(d time.Duration) *Companion {
	c.resultTimeout = d
	return c
}

// message is one header read from the device, with its payload for a write.
type message struct {
	header  protocol.Header
	payload []byte
	err     error
}

// Run answers requests until the last stage's result arrives, the device
// closes the link or the result timeout expires. Reads from rw happen on a
// separate goroutine that exits once rw returns an error, so callers close
// rw after Run returns.
func (c *Companion) Run(ctx context.Context) ([]Result, error) {
	messages := make(chan message)
	quit := make(chan struct{})
	defer close(quit)
	go c.read(messages, quit)

	var results []Result
	var expired <-chan time.Time

	for !c.done {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var msg message
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-expired:
			c.logger.WithFields(logrus.Fields{
				"stage":   c.current.String(),
				"timeout": c.resultTimeout.String(),
			}).Warn("No result for the last stage, ending session")
			return results, nil
		case msg = <-messages:
		}

		if msg.err != nil {
			if errors.Is(msg.err, io.EOF) || errors.Is(msg.err, io.ErrClosedPipe) {
				c.logger.WithField("results", len(results)).Info("Device closed the link")
				return results, nil
			}
			return results, msg.err
		}

		h := msg.header
		c.logger.WithFields(logrus.Fields{
			"request":  h.Request.String(),
			"shape":    fmt.Sprintf("%dx%d", h.Width, h.Height),
			"encoding": h.Encoding.String(),
		}).Debug("Request received")

		switch h.Request {
		case protocol.ReadRequest:
			if err := c.serve(h); err != nil {
				return results, err
			}
			if c.next >= len(c.stages) && c.resultTimeout > 0 && expired == nil {
				timer := time.NewTimer(c.resultTimeout)
				defer timer.Stop()
				expired = timer.C
			}
		case protocol.WriteRequest:
			res, err := c.collect(h, msg.payload)
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
	}

	c.logger.WithField("results", len(results)).Info("Session complete")
	return results, nil
}

// read forwards headers and result payloads until the first error.
func (c *Companion) read(messages chan<- message, quit <-chan struct{}) {
	for {
		var msg message
		msg.header, msg.err = c.scanner.Next()
		if msg.err != nil {
			msg.err = fmt.Errorf("wait for request: %w", msg.err)
		} else if msg.header.Request == protocol.WriteRequest {
			msg.payload, msg.err = c.scanner.ReadPayload(msg.header, nil)
			if msg.err != nil {
				msg.err = fmt.Errorf("read result: %w", msg.err)
			}
		}

		select {
		case messages <- msg:
		case <-quit:
			return
		}
		if msg.err != nil {
			return
		}
	}
}

// serve sends the frame planned for the next stage. A request past the last
// stage is left unanswered so the device sees no frame.
func (c *Companion) serve(h protocol.Header) error {
	if c.next >= len(c.stages) {
		c.logger.Warn("Read request after the last stage, not answering")
		return nil
	}
	stage := c.stages[c.next]
	c.next++

	pix, origin, err := c.frameFor(stage, h)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	if len(pix) != h.PayloadSize() {
		return fmt.Errorf("%s: frame from %s has %d bytes, device asked for %d", stage, origin, len(pix), h.PayloadSize())
	}
	if _, err := c.rw.Write(pix); err != nil {
		return fmt.Errorf("%s: send frame: %w", stage, err)
	}

	img, err := buffer.NewImage(pix, int(h.Width), int(h.Height), h.Encoding)
	if err != nil {
		return err
	}
	c.current = stage
	c.sent = &img

	c.logger.WithFields(logrus.Fields{
		"stage":  stage.String(),
		"source": origin,
		"bytes":  len(pix),
	}).Info("Frame sent")
	return nil
}

func (c *Companion) frameFor(stage core.Stage, h protocol.Header) ([]byte, string, error) {
	w, ht := int(h.Width), int(h.Height)

	switch stage {
	case core.StageOtsuGray:
		path := c.files.Gray
		if path == "" {
			path = c.files.Color
		}
		pix, err := c.source.Load(path, w, ht, h.Encoding)
		return pix, path, err

	case core.StageOtsuColor:
		pix, err := c.source.Load(c.files.Color, w, ht, h.Encoding)
		return pix, c.files.Color, err
	}

	if c.files.Binary != "" {
		pix, err := c.source.Load(c.files.Binary, w, ht, h.Encoding)
		return pix, c.files.Binary, err
	}
	if h.Encoding == buffer.Gray8 && len(c.binary) == h.PayloadSize() {
		return append([]byte(nil), c.binary...), "otsu_gray result", nil
	}

	// No earlier result to reuse: binarize the gray image here.
	path := c.files.Gray
	if path == "" {
		path = c.files.Color
	}
	pix, err := c.source.Load(path, w, ht, buffer.Gray8)
	if err != nil {
		return nil, path, err
	}
	img, err := buffer.NewImage(pix, w, ht, buffer.Gray8)
	if err != nil {
		return nil, path, err
	}
	if _, err := algorithms.Binarize(img, img); err != nil {
		return nil, path, err
	}
	return pix, path + " (binarized on host)", nil
}

func (c *Companion) collect(h protocol.Header, payload []byte) (Result, error) {
	img, err := buffer.NewImage(payload, int(h.Width), int(h.Height), h.Encoding)
	if err != nil {
		return Result{}, err
	}

	stage := c.current
	path := filepath.Join(c.outputDir, stage.String()+"_result.png")
	if err := c.sink.Save(path, img); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", path, err)
	}

	res := Result{Stage: stage, Path: path, Header: h, Metrics: c.compare(img)}

	if stage == core.StageOtsuGray {
		c.binary = append([]byte(nil), payload...)
	}
	if c.next >= len(c.stages) {
		c.done = true
	}
	c.sent = nil

	fields := logrus.Fields{"stage": stage.String(), "path": path}
	for name, v := range res.Metrics {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			fields[name] = v
		}
	}
	c.logger.WithFields(fields).Info("Result saved")

	return res, nil
}

// compare scores the result against the frame that produced it, reduced to
// gray when it was sent in color.
func (c *Companion) compare(result buffer.Image) map[string]float64 {
	if c.sent == nil {
		return nil
	}
	reference := *c.sent
	if reference.Encoding() == buffer.RGB565 {
		gray, err := buffer.NewImage(make([]byte, reference.PixelCount()), reference.Width(), reference.Height(), buffer.Gray8)
		if err != nil {
			return nil
		}
		if err := algorithms.ToGrayscale(reference, gray); err != nil {
			return nil
		}
		reference = gray
	}
	return c.evaluator.CalculateAll(reference, result)
}
