package config

import (
	"fmt"
	"strings"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/rng"
	"github.com/dniure/BSE-IntelligentAgents/internal/simerr"
	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

// BuildPopulation instantiates every trader named by spec, numbering
// IDs sequentially within idPrefix (e.g. "B" for buyers, "S" for
// sellers), per the generator's indexedID naming. birth is the session
// time at which every trader in a fresh (non-sweep-resumed) population
// is born.
func BuildPopulation(spec PopulationSpec, idPrefix string, c market.Constants, stream *rng.Stream, birth float64) ([]trader.Trader, error) {
	out := make([]trader.Trader, 0, spec.N())
	idx := 0
	for _, t := range spec.Traders {
		for i := 0; i < t.Count; i++ {
			id := fmt.Sprintf("%s%02d", idPrefix, idx)
			tr, err := newTrader(t, id, c, stream, birth)
			if err != nil {
				return nil, err
			}
			out = append(out, tr)
			idx++
		}
	}
	return out, nil
}

func newTrader(spec TraderSpec, id string, c market.Constants, stream *rng.Stream, birth float64) (trader.Trader, error) {
	k := spec.K
	switch strings.ToUpper(spec.Type) {
	case "GVWY":
		return trader.NewGVWY(id, c, stream, birth), nil
	case "ZIC":
		return trader.NewZIC(id, c, stream, birth), nil
	case "SHVR":
		return trader.NewSHVR(id, c, stream, birth), nil
	case "SNPR":
		return trader.NewSNPR(id, c, stream, birth), nil
	case "NOISY_ZIC", "NOISYZIC":
		return trader.NewNoisyZIC(id, c, stream, birth), nil
	case "PRZI":
		return trader.NewPRZI(id, c, stream, birth), nil
	case "PRSH":
		return trader.NewPRSH(id, c, stream, birth, orDefault(k, 4)), nil
	case "PRDE":
		return trader.NewPRDE(id, c, stream, birth, orDefault(k, 4))
	case "ZIP":
		return trader.NewZIP(id, c, stream, birth), nil
	case "ZIPSH":
		return trader.NewZIPSH(id, c, stream, birth, orDefault(k, 4)), nil
	case "ZIPDE":
		return trader.NewZIPDE(id, c, stream, birth, orDefault(k, 4))
	case "PT1":
		return trader.NewPT1(id, c, stream, birth), nil
	case "PT2":
		return trader.NewPT2(id, c, stream, birth), nil
	case "TREND", "TRENDFOLLOWER":
		return trader.NewTrendFollower(id, c, stream, birth), nil
	case "MEANREV", "MEANREVERTER":
		return trader.NewMeanReverter(id, c, stream, birth), nil
	case "RL":
		return trader.NewRL(id, c, stream, birth), nil
	default:
		return nil, simerr.Configf("config.newTrader", "unknown trader type %q", spec.Type)
	}
}

func orDefault(k, def int) int {
	if k <= 0 {
		return def
	}
	return k
}
