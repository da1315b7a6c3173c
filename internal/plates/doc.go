// Package plates exports source plates into the pipeline's shot folders.
//
// Each export lands in the next free sourceplate/vNNNN/rgb folder of the
// shot and updates the shot info file with the shot's frame range.
package plates
