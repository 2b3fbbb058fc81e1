// Package dsp implements the streaming signal-processing stages of the EEG
// pipeline.
//
// Every stage operates on channel-major data, x[channel][sample], and the
// stateful stages (filters, windowing) are written so that feeding a signal
// in chunks of any size produces exactly the same output as feeding it in one
// call. That property is what lets the online pipeline reproduce the offline
// calibration path.
//
// Stages:
//   - SOSFilter / FilterBank: causal Butterworth band-pass and notch filters
//     as cascaded second-order sections
//   - Windower: ring buffer that emits overlapping analysis windows
//   - CommonAverage, ApplyMatrix: re-referencing and spatial projections
//   - FastICA, ArtifactComponents, CleaningMatrix: ICA based artifact removal
//   - FitCSP: common spatial patterns
//   - LogVariance, VariancePool, AveragePool, BandPower: feature primitives
//
// Linear algebra is delegated to gonum.
package dsp
