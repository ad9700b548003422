// SPDX-License-Identifier: MIT

package livetv

import "github.com/mhartwig/tunerhub/internal/backend"

// unknownIndex marks a stream whose position inside the container is not
// known.
const unknownIndex = -1

// Normalize scrubs a backend-returned media descriptor in place so
// downstream players get predictable data out of unreliable providers.
//
// Descriptors with no streams get synthesized defaults: video targets one
// video plus one audio stream, audio targets a single audio stream. The
// synthesized video stream is marked interlaced so deinterlacing is applied
// when in doubt. Non-positive numeric values are cleared to unknown, and
// when stream indices collide every index is reset to unknown, since
// ambiguous indexing is worse than none.
func Normalize(src *backend.MediaSource, isVideo bool) {
	if len(src.Streams) == 0 {
		if isVideo {
			src.Streams = []backend.MediaStream{
				{Type: backend.StreamVideo, Index: unknownIndex, IsInterlaced: true},
				{Type: backend.StreamAudio, Index: unknownIndex},
			}
		} else {
			src.Streams = []backend.MediaStream{
				{Type: backend.StreamAudio, Index: unknownIndex},
			}
		}
	}

	for i := range src.Streams {
		s := &src.Streams[i]
		s.Bitrate = scrubInt(s.Bitrate)
		s.Channels = scrubInt(s.Channels)
		s.SampleRate = scrubInt(s.SampleRate)
		s.Width = scrubInt(s.Width)
		s.Height = scrubInt(s.Height)
		s.AverageFrameRate = scrubFloat(s.AverageFrameRate)
		s.RealFrameRate = scrubFloat(s.RealFrameRate)
		s.Level = scrubFloat(s.Level)
	}

	if !indicesDistinct(src.Streams) {
		for i := range src.Streams {
			src.Streams[i].Index = unknownIndex
		}
	}

	src.Bitrate = scrubInt(src.Bitrate)
	if src.Bitrate == nil {
		total := 0
		for _, s := range src.Streams {
			if s.Bitrate != nil {
				total += *s.Bitrate
			}
		}
		if total > 0 {
			src.Bitrate = &total
		}
	}
}

func scrubInt(v *int) *int {
	if v != nil && *v <= 0 {
		return nil
	}
	return v
}

func scrubFloat(v *float64) *float64 {
	if v != nil && *v <= 0 {
		return nil
	}
	return v
}

func indicesDistinct(streams []backend.MediaStream) bool {
	seen := make(map[int]struct{}, len(streams))
	for _, s := range streams {
		if _, dup := seen[s.Index]; dup {
			return false
		}
		seen[s.Index] = struct{}{}
	}
	return true
}
