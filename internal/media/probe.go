package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dunamismax/printflow/internal/imgerr"
)

var ErrNoVideoStream = errors.New("resource has no video stream")

// VideoInfo is what probing reports about a video without decoding a frame.
type VideoInfo struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		Duration     string `json:"duration"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a remote video. ffprobe reads only the headers it needs,
// so nothing is downloaded to scratch storage.
func (e *Extractor) Probe(ctx context.Context, videoURL string) (VideoInfo, error) {
	if err := validateURL(videoURL); err != nil {
		return VideoInfo{}, err
	}

	ctx, cancel := e.withFetchTimeout(ctx)
	defer cancel()

	info, err := e.probe(ctx, videoURL)
	if err != nil {
		return VideoInfo{}, imgerr.Media("probe video", err)
	}
	return info, nil
}

func (e *Extractor) probe(ctx context.Context, target string) (VideoInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		target,
	}
	out, err := run(ctx, e.ffprobePath, args)
	if err != nil {
		return VideoInfo{}, err
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "video" {
			continue
		}
		if stream.Width <= 0 || stream.Height <= 0 {
			return VideoInfo{}, fmt.Errorf("video stream reports %dx%d", stream.Width, stream.Height)
		}

		duration := parseSeconds(out.Format.Duration)
		if duration <= 0 {
			duration = parseSeconds(stream.Duration)
		}
		return VideoInfo{
			Duration:  duration,
			Width:     stream.Width,
			Height:    stream.Height,
			FrameRate: parseRate(stream.AvgFrameRate),
		}, nil
	}
	return VideoInfo{}, ErrNoVideoStream
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseSeconds(s)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
