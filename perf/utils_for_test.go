package perf

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mongodb/grip"
)

const defaultSeed = 12345678

// lcgShuffler is a tiny deterministic permutation source. Expected fixture
// values under testdata were computed offline against the same generator, so
// tests can assert exact probabilities.
type lcgShuffler struct {
	state uint64
}

func (s *lcgShuffler) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		s.state = s.state*6364136223846793005 + 1442695040888963407
		swap(i, int(s.state%uint64(i+1)))
	}
}

func LoadFixture(testName string, fixture interface{}) error {
	parts := strings.Split(testName, "/")
	testName = parts[len(parts)-1]

	fixtureName := fmt.Sprintf("testdata/%s.json", testName)
	jsonFile, err := os.Open(fixtureName)
	if err != nil {
		return err
	}
	defer func() { grip.Alert(jsonFile.Close()) }()

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return err
	}

	return json.Unmarshal(byteValue, fixture)
}
