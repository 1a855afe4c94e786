package priors

import "fmt"

// Default returns the built-in class-prior document used when no
// priors.json is resolved from CLI flag, environment variable, or XDG
// config directory. Values mirror the calibration baked into the original
// reference tool: useful processes dominate the prior mass, with zombies
// rarest and most CPU-starved.
func Default() Priors {
	return Priors{
		SchemaVersion: "1.0.0",
		Description:   "built-in default priors",
		Classes: Classes{
			Useful: ClassPriors{
				PriorProb:  0.70,
				CPUBeta:    BetaParams{Alpha: 2.0, Beta: 5.0},
				OrphanBeta: BetaParams{Alpha: 1.0, Beta: 20.0},
				TTYBeta:    BetaParams{Alpha: 5.0, Beta: 3.0},
				NetBeta:    BetaParams{Alpha: 3.0, Beta: 5.0},
			},
			UsefulBad: ClassPriors{
				PriorProb:  0.10,
				CPUBeta:    BetaParams{Alpha: 8.0, Beta: 2.0},
				OrphanBeta: BetaParams{Alpha: 2.0, Beta: 8.0},
				TTYBeta:    BetaParams{Alpha: 3.0, Beta: 5.0},
				NetBeta:    BetaParams{Alpha: 4.0, Beta: 4.0},
			},
			Abandoned: ClassPriors{
				PriorProb:  0.15,
				CPUBeta:    BetaParams{Alpha: 1.0, Beta: 10.0},
				OrphanBeta: BetaParams{Alpha: 8.0, Beta: 2.0},
				TTYBeta:    BetaParams{Alpha: 1.0, Beta: 10.0},
				NetBeta:    BetaParams{Alpha: 1.0, Beta: 8.0},
			},
			Zombie: ClassPriors{
				PriorProb:  0.05,
				CPUBeta:    BetaParams{Alpha: 1.0, Beta: 100.0},
				OrphanBeta: BetaParams{Alpha: 15.0, Beta: 1.0},
				TTYBeta:    BetaParams{Alpha: 1.0, Beta: 50.0},
				NetBeta:    BetaParams{Alpha: 1.0, Beta: 100.0},
			},
		},
	}
}

// Validate checks that the prior document is well-formed: the four class
// priors sum to ~1, and every Beta pair has strictly positive parameters.
func (p *Priors) Validate() error {
	sum := p.Classes.Useful.PriorProb + p.Classes.UsefulBad.PriorProb +
		p.Classes.Abandoned.PriorProb + p.Classes.Zombie.PriorProb
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("class prior probabilities sum to %.4f, want ~1.0", sum)
	}

	for _, c := range []struct {
		name string
		cp   ClassPriors
	}{
		{"useful", p.Classes.Useful},
		{"useful_bad", p.Classes.UsefulBad},
		{"abandoned", p.Classes.Abandoned},
		{"zombie", p.Classes.Zombie},
	} {
		for _, b := range []struct {
			name string
			bp   BetaParams
		}{
			{"cpu_beta", c.cp.CPUBeta},
			{"orphan_beta", c.cp.OrphanBeta},
			{"tty_beta", c.cp.TTYBeta},
			{"net_beta", c.cp.NetBeta},
		} {
			if b.bp.Alpha <= 0 || b.bp.Beta <= 0 {
				return fmt.Errorf("%s.%s: alpha and beta must be > 0, got alpha=%v beta=%v",
					c.name, b.name, b.bp.Alpha, b.bp.Beta)
			}
		}
	}
	return nil
}
