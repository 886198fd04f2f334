package money

import (
	"encoding/json"
	"fmt"
)

// moneyJSON is the wire shape for Money: atomic units as a decimal string,
// never a float, so a client can't silently lose precision.
//
//	{"asset":"USDC", "atomic":"1500000"}
type moneyJSON struct {
	Asset  string `json:"asset"`
	Atomic string `json:"atomic"`
}

// MarshalJSON implements json.Marshaler for Money.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Asset:  m.Asset.Code,
		Atomic: m.ToAtomic(),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Money. Asset must already be
// registered; atomic must be present and parse as an integer.
func (m *Money) UnmarshalJSON(data []byte) error {
	var mj moneyJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return fmt.Errorf("money: invalid JSON: %w", err)
	}
	if mj.Asset == "" {
		return fmt.Errorf("money: asset code required")
	}
	if mj.Atomic == "" {
		return fmt.Errorf("money: 'atomic' field required")
	}

	asset, err := GetAsset(mj.Asset)
	if err != nil {
		return err
	}

	parsed, err := FromAtomic(asset, mj.Atomic)
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}
