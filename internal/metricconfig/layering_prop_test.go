package metricconfig

import (
	"fmt"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyLayerPrecedence(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	root := installRoot(t, "m")
	r := NewResolver(root)
	general := r.GeneralConfigPath("m")
	host := r.HostConfigPath("m", "host1")

	props.Property("host beats general beats defaults", prop.ForAll(
		func(defValue, genValue, hostValue string, hasGeneral, hasHost bool) bool {
			os.Remove(general)
			os.Remove(host)
			if hasGeneral {
				writeConf(t, general, fmt.Sprintf("[m]\nkey = %s\n", genValue))
			}
			if hasHost {
				writeConf(t, host, fmt.Sprintf("[m]\nkey = %s\n", hostValue))
			}

			defaults := NewConfig()
			defaults.General.Set("key", defValue)
			m, err := r.Resolve("m", Options{Defaults: defaults, Host: "host1"})
			if err != nil {
				return false
			}

			want := defValue
			if hasGeneral {
				want = genValue
			}
			if hasHost {
				want = hostValue
			}
			got, _ := m.Value("key")
			return got == want
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
		gen.Bool(),
	))

	props.TestingRun(t)
}
