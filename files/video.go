package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/labellerr/labellerr-go/api"
)

// VideoFile adds keyframe operations on top of the shared file behavior.
type VideoFile struct {
	Handle
}

// TotalFrames reports the frame count from the file's metadata.
func (f *VideoFile) TotalFrames() int {
	return f.record.Metadata.TotalFrames
}

// Frames fetches signed URLs for the given frame range, keyed by frame
// number. frameEnd of 0 means the whole video.
func (f *VideoFile) Frames(ctx context.Context, frameStart, frameEnd int) (map[string]string, error) {
	if f.datasetID == "" {
		return nil, fmt.Errorf("dataset id is required for fetching video frames")
	}
	if frameEnd == 0 {
		frameEnd = f.TotalFrames()
	}

	query := url.Values{}
	query.Set("dataset_id", f.datasetID)
	query.Set("file_id", f.fileID)
	query.Set("frame_start", strconv.Itoa(frameStart))
	query.Set("frame_end", strconv.Itoa(frameEnd))
	query.Set("project_id", f.projectID)
	query.Set("uuid", api.RequestID())
	query.Set("client_id", f.clientID)

	envelope, err := f.svc.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodGet,
		Path:     "/data/video_frames",
		Query:    query,
		ClientID: f.clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch frames of %s: %w", f.fileID, err)
	}

	frames := map[string]string{}
	if err := json.Unmarshal(envelope.Raw, &frames); err != nil {
		return nil, fmt.Errorf("decode frames of %s: %w", f.fileID, err)
	}
	return frames, nil
}

// DownloadStats summarizes a frame download run.
type DownloadStats struct {
	Downloaded int
	Failed     []string
	Dir        string
}

const defaultFrameWorkers = 30

// DownloadFrames fetches the given frames into outputDir/<file id>/, one
// jpg per frame, with bounded concurrency. Per-frame failures are collected,
// not fatal.
func (f *VideoFile) DownloadFrames(ctx context.Context, frames map[string]string, outputDir string, workers int) (DownloadStats, error) {
	if workers <= 0 {
		workers = defaultFrameWorkers
	}
	if workers > len(frames) && len(frames) > 0 {
		workers = len(frames)
	}

	saveDir := filepath.Join(outputDir, f.fileID)
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return DownloadStats{}, fmt.Errorf("create frame dir: %w", err)
	}

	type outcome struct {
		frame string
		err   error
	}

	semaphore := make(chan struct{}, workers)
	outcomes := make(chan outcome, len(frames))
	var wg sync.WaitGroup

	for frame, frameURL := range frames {
		wg.Add(1)
		go func(frame, frameURL string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			err := f.downloadFrame(ctx, frameURL, filepath.Join(saveDir, frame+".jpg"))
			outcomes <- outcome{frame: frame, err: err}
		}(frame, frameURL)
	}
	wg.Wait()
	close(outcomes)

	stats := DownloadStats{Dir: saveDir}
	for result := range outcomes {
		if result.err != nil {
			f.svc.logger.Warnf("Failed to download frame %s: %s", result.frame, result.err)
			stats.Failed = append(stats.Failed, result.frame)
			continue
		}
		stats.Downloaded++
	}
	return stats, nil
}

// Keyframe marks one frame of a video file as a key frame.
type Keyframe struct {
	FrameNumber int    `json:"frame_number"`
	IsManual    bool   `json:"is_manual"`
	Method      string `json:"method"`
	Source      string `json:"source"`
}

// ManualKeyframe is a manually placed keyframe at the given frame number.
func ManualKeyframe(frameNumber int) Keyframe {
	return Keyframe{
		FrameNumber: frameNumber,
		IsManual:    true,
		Method:      "manual",
		Source:      "manual",
	}
}

// AddOrUpdateKeyframes links the given keyframes to the file, replacing any
// existing entries for the same frame numbers.
func (f *VideoFile) AddOrUpdateKeyframes(ctx context.Context, keyframes []Keyframe) error {
	if len(keyframes) == 0 {
		return fmt.Errorf("no keyframes given")
	}
	for _, keyframe := range keyframes {
		if keyframe.FrameNumber < 0 {
			return fmt.Errorf("frame number %d is negative", keyframe.FrameNumber)
		}
	}

	query := url.Values{}
	query.Set("client_id", f.clientID)
	query.Set("uuid", api.RequestID())

	_, err := f.svc.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/actions/add_update_keyframes",
		Query:    query,
		ClientID: f.clientID,
		Body: map[string]any{
			"project_id": f.projectID,
			"file_id":    f.fileID,
			"keyframes":  keyframes,
		},
	})
	if err != nil {
		return fmt.Errorf("link keyframes to %s: %w", f.fileID, err)
	}
	return nil
}

// DeleteKeyframes removes the given frame numbers from the file's keyframes.
func (f *VideoFile) DeleteKeyframes(ctx context.Context, frameNumbers []int) error {
	if len(frameNumbers) == 0 {
		return fmt.Errorf("no keyframes given")
	}

	query := url.Values{}
	query.Set("project_id", f.projectID)
	query.Set("uuid", api.RequestID())
	query.Set("client_id", f.clientID)

	_, err := f.svc.api.Do(ctx, api.RequestOptions{
		Method:   http.MethodPost,
		Path:     "/actions/delete_keyframes",
		Query:    query,
		ClientID: f.clientID,
		Body: map[string]any{
			"project_id": f.projectID,
			"file_id":    f.fileID,
			"keyframes":  frameNumbers,
		},
	})
	if err != nil {
		return fmt.Errorf("delete keyframes of %s: %w", f.fileID, err)
	}
	return nil
}

func (f *VideoFile) downloadFrame(ctx context.Context, frameURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, frameURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.svc.api.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
