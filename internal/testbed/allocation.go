package testbed

import (
	"github.com/celestiaorg/testbed/internal/types"
)

// SelectInactive picks the first quantity inactive instances of every region, in snapshot order.
// When any region falls short, no instances are returned and every shortfall is reported.
func SelectInactive(instances []types.Instance, regions []string, quantity int) ([]types.Instance, []Deficit) {
	var (
		selected []types.Instance
		deficits []Deficit
	)

	for _, region := range regions {
		picked := 0
		for _, instance := range instances {
			if picked == quantity {
				break
			}
			if instance.Region == region && instance.IsInactive() {
				selected = append(selected, instance)
				picked++
			}
		}
		if picked < quantity {
			deficits = append(deficits, Deficit{Region: region, Missing: quantity - picked})
		}
	}

	if len(deficits) > 0 {
		return nil, deficits
	}
	return selected, nil
}
