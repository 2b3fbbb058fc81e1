// Package commands implements eegctl, the offline companion to the decoder
// service: calibrate a decoder from a recording file, score it on held-out
// data and replay recordings through the streaming pipeline.
package commands
