// Package media extracts single frames from remote videos with ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/codec"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/raster"
	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMaxVideoBytes = 512 << 20

	defaultFrameStep = 1.0 / 25
)

var ErrVideoTooLarge = errors.New("video exceeds size limit")

type Config struct {
	FFmpegPath  string
	FFprobePath string
	// ScratchDir holds per-call working directories. Empty means os.TempDir.
	ScratchDir    string
	FetchTimeout  time.Duration
	MaxVideoBytes int64
	HTTPClient    *http.Client
	Logger        *log.Logger
}

// Extractor owns its scratch location; every call works in a fresh
// subdirectory that is removed before the call returns.
type Extractor struct {
	ffmpegPath    string
	ffprobePath   string
	scratchDir    string
	fetchTimeout  time.Duration
	maxVideoBytes int64
	client        *http.Client
	logger        *log.Logger
}

func NewExtractor(cfg Config) *Extractor {
	e := &Extractor{
		ffmpegPath:    cfg.FFmpegPath,
		ffprobePath:   cfg.FFprobePath,
		scratchDir:    cfg.ScratchDir,
		fetchTimeout:  cfg.FetchTimeout,
		maxVideoBytes: cfg.MaxVideoBytes,
		client:        cfg.HTTPClient,
		logger:        cfg.Logger,
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.ffprobePath == "" {
		e.ffprobePath = "ffprobe"
	}
	if e.scratchDir == "" {
		e.scratchDir = os.TempDir()
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = DefaultFetchTimeout
	}
	if e.maxVideoBytes <= 0 {
		e.maxVideoBytes = DefaultMaxVideoBytes
	}
	if e.client == nil {
		e.client = &http.Client{}
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	return e
}

// Extract returns the frame shown at timestamp seconds. Timestamps past the
// end of the video resolve to the last decodable frame.
func (e *Extractor) Extract(ctx context.Context, videoURL string, timestamp float64) (raster.Image, error) {
	if err := validateURL(videoURL); err != nil {
		return raster.Image{}, err
	}
	if math.IsNaN(timestamp) || math.IsInf(timestamp, 0) || timestamp < 0 {
		return raster.Image{}, imgerr.Mediaf("extract frame", "timestamp %v must be a non-negative number", timestamp)
	}

	workDir := filepath.Join(e.scratchDir, "printflow-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return raster.Image{}, imgerr.Media("create scratch dir", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			e.logger.Printf("scratch cleanup failed dir=%s err=%v", workDir, err)
		}
	}()

	sourcePath := filepath.Join(workDir, "source")
	if err := e.download(ctx, videoURL, sourcePath); err != nil {
		return raster.Image{}, imgerr.Media("fetch video", err)
	}

	info, err := e.probe(ctx, sourcePath)
	if err != nil {
		return raster.Image{}, imgerr.Media("probe video", err)
	}

	seek := clampTimestamp(timestamp, info)
	framePath := filepath.Join(workDir, "frame.png")
	if err := e.extractFrame(ctx, sourcePath, framePath, seek); err != nil {
		return raster.Image{}, imgerr.Media("decode frame", err)
	}

	data, err := os.ReadFile(framePath)
	if err != nil {
		return raster.Image{}, imgerr.Media("read frame", err)
	}
	img, _, err := codec.DecodeImage(data, 0)
	if err != nil {
		// A frame ffmpeg wrote but we cannot parse is a media failure, not bad
		// caller input.
		return raster.Image{}, &imgerr.Error{Kind: imgerr.KindMedia, Op: "decode frame", Err: err}
	}

	e.logger.Printf("extracted frame url=%s requested=%.3f seek=%.3f size=%dx%d", redactURL(videoURL), timestamp, seek, img.Width(), img.Height())
	return img, nil
}

func (e *Extractor) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.fetchTimeout)
}

func (e *Extractor) download(ctx context.Context, videoURL, dst string) error {
	ctx, cancel := e.withFetchTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("video host returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > e.maxVideoBytes {
		return fmt.Errorf("%w: %d bytes", ErrVideoTooLarge, resp.ContentLength)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, e.maxVideoBytes+1))
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	if n > e.maxVideoBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrVideoTooLarge, e.maxVideoBytes)
	}
	if n == 0 {
		return errors.New("video body is empty")
	}
	return f.Close()
}

// extractFrame seeks to ts and writes one PNG frame. Seeking close to the end
// of some containers yields no frame, so an empty result falls back to the
// final frame of the stream.
func (e *Extractor) extractFrame(ctx context.Context, src, dst string, ts float64) error {
	args := ffmpeg.Input(src, ffmpeg.KwArgs{"ss": formatSeconds(ts)}).
		Output(dst, ffmpeg.KwArgs{"frames:v": 1, "f": "image2", "vcodec": "png"}).
		OverWriteOutput().
		GetArgs()
	if _, err := run(ctx, e.ffmpegPath, append([]string{"-v", "error"}, args...)); err != nil {
		return err
	}
	if frameWritten(dst) {
		return nil
	}

	e.logger.Printf("seek produced no frame ts=%.3f, falling back to last frame", ts)
	args = ffmpeg.Input(src, ffmpeg.KwArgs{"sseof": "-1"}).
		Output(dst, ffmpeg.KwArgs{"update": 1, "f": "image2", "vcodec": "png"}).
		OverWriteOutput().
		GetArgs()
	if _, err := run(ctx, e.ffmpegPath, append([]string{"-v", "error"}, args...)); err != nil {
		return err
	}
	if !frameWritten(dst) {
		return errors.New("ffmpeg produced no frame")
	}
	return nil
}

func frameWritten(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Size() > 0
}

// clampTimestamp keeps ts inside the decodable range reported by the probe.
func clampTimestamp(ts float64, info VideoInfo) float64 {
	if info.Duration <= 0 {
		return ts
	}
	step := defaultFrameStep
	if info.FrameRate > 0 {
		step = 1 / info.FrameRate
	}
	last := math.Max(0, info.Duration-step)
	return math.Min(ts, last)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return imgerr.Media("parse video url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return imgerr.Mediaf("parse video url", "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return imgerr.Mediaf("parse video url", "missing host")
	}
	return nil
}

// redactURL drops query strings, which often carry signed credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
