// Package transcode wraps the ffmpeg command line to turn movie files or
// image sequences into H.264 review previews, reporting frame progress parsed
// from ffmpeg's status output.
package transcode
