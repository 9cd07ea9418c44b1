package stages

import "github.com/mixmaster-audio/pipeline/internal/pipeline"

// RegisterDefaults wires every stage implementation in this package into
// reg, keyed by the same ids declared in internal/contracts/stages.json.
// cmd/worker calls this once at startup after loading the contract
// registry; the two registries are independent (§3: contract lookup and
// stage-code lookup are separate concerns) but share ids by convention.
//
// stemWorkerPoolSize bounds per-stem fan-out concurrency for stems-dsp
// stages. Sample rate is deliberately left at its zero value here — each
// job can carry a different sample rate, so the rate-dependent stages
// read it from the job's Context at run time instead of a fixed value
// baked in at registration.
func RegisterDefaults(reg *pipeline.Registry, stemWorkerPoolSize int) {
	reg.Register("session_format", SessionFormat{})
	reg.Register("separate_stems", SeparateStems{})
	reg.Register("stem_dc_offset", StemDCOffset{MaxConcurrency: stemWorkerPoolSize})
	reg.Register("stem_working_loudness", StemWorkingLoudness{MaxConcurrency: stemWorkerPoolSize})
	reg.Register("key_detection", KeyDetection{})
	reg.Register("mixbus_headroom", MixbusHeadroom{})
	reg.Register("stem_hpf_lpf", StemHPFLPF{MaxConcurrency: stemWorkerPoolSize})
	reg.Register("stem_dynamics", StemDynamics{MaxConcurrency: stemWorkerPoolSize})
	reg.Register("mixbus_tonal_balance", MixbusTonalBalance{})
	reg.Register("mixbus_color", MixbusColor{})
	reg.Register("master_final_limits", MasterFinalLimits{})
}
