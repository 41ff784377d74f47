// +build property_test

package snapshotter

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func Test_BranchNameGeneration(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	properties.Property("name keeps the prefix and stays a valid ref", prop.ForAll(
		func(prefix string, sec int64) bool {
			at := time.Unix(sec, 0)
			name := branchName(prefix, at)
			if !strings.HasPrefix(name, prefix+"-") {
				return false
			}
			// git refs cannot contain spaces, "..", or "~^:" characters.
			return !strings.ContainsAny(name, " ~^:?*[\\") && !strings.Contains(name, "..")
		},
		gen.RegexMatch("[a-z][a-z0-9-]{0,20}"),
		gen.Int64Range(0, 4102444800),
	))

	properties.Property("fine-grained name differs from the coarse name", prop.ForAll(
		func(prefix string, sec int64, nanos int64) bool {
			at := time.Unix(sec, nanos)
			return fineBranchName(prefix, at) != branchName(prefix, at)
		},
		gen.RegexMatch("[a-z][a-z0-9-]{0,20}"),
		gen.Int64Range(0, 4102444800),
		gen.Int64Range(1, 999999999),
	))

	properties.TestingRun(t)
}
