package configuration

import (
	"bytes"
	"os"
	"testing"
	"time"

	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

var configYamlV0_1 = `
version: 0.1
log:
  level: info
store:
  rootdirectory: /var/lib/zistore
scheduler:
  maxsimultaneous: 8
  retryattempts: 5
`

var expectedConfig = Configuration{
	Version: "0.1",
	Log: Log{
		Level: "info",
	},
	Store: Store{
		RootDirectory: "/var/lib/zistore",
	},
	Scheduler: Scheduler{
		MaxSimultaneous: 8,
		RetryAttempts:   5,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    30 * time.Second,
	},
}

type ConfigSuite struct {
	expectedConfig Configuration
}

var _ = Suite(new(ConfigSuite))

func (suite *ConfigSuite) SetUpTest(c *C) {
	suite.expectedConfig = expectedConfig
	os.Clearenv()
}

// TestParseSimple validates that configYamlV0_1 parses into expectedConfig,
// with scheduler defaults filled in where the document was silent.
func (suite *ConfigSuite) TestParseSimple(c *C) {
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	c.Assert(err, IsNil)
	c.Assert(config, DeepEquals, &suite.expectedConfig)
}

// TestParseMissingStoreRoot validates that a document with no
// store.rootdirectory is rejected, since the Directory Store has nowhere
// else to default to.
func (suite *ConfigSuite) TestParseMissingStoreRoot(c *C) {
	incomplete := `
version: 0.1
log:
  level: info
`
	_, err := Parse(bytes.NewReader([]byte(incomplete)))
	c.Assert(err, NotNil)
}

// TestParseDefaultsScheduler validates that an unset scheduler section is
// filled in with the documented defaults.
func (suite *ConfigSuite) TestParseDefaultsScheduler(c *C) {
	minimal := `
version: 0.1
store:
  rootdirectory: /var/lib/zistore
`
	config, err := Parse(bytes.NewReader([]byte(minimal)))
	c.Assert(err, IsNil)
	c.Assert(config.Scheduler.MaxSimultaneous, Equals, int64(2))
	c.Assert(config.Scheduler.RetryAttempts, Equals, 3)
	c.Assert(config.Scheduler.RetryWaitMin, Equals, time.Second)
	c.Assert(config.Scheduler.RetryWaitMax, Equals, 30*time.Second)
	c.Assert(config.Log.Level, Equals, Loglevel("info"))
}

// TestParseWithEnvOverride validates that a ZISTORE_-prefixed environment
// variable overrides a field the document set explicitly.
func (suite *ConfigSuite) TestParseWithEnvOverride(c *C) {
	os.Setenv("ZISTORE_STORE_ROOTDIRECTORY", "/mnt/override")
	defer os.Unsetenv("ZISTORE_STORE_ROOTDIRECTORY")

	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	c.Assert(err, IsNil)
	c.Assert(config.Store.RootDirectory, Equals, "/mnt/override")
}

// TestParseInvalidLoglevel validates that an unrecognised loglevel fails
// to parse.
func (suite *ConfigSuite) TestParseInvalidLoglevel(c *C) {
	invalid := `
version: 0.1
log:
  level: chatty
store:
  rootdirectory: /var/lib/zistore
`
	_, err := Parse(bytes.NewReader([]byte(invalid)))
	c.Assert(err, NotNil)
}

// TestParseUnsupportedVersion validates that an unknown version string is
// rejected outright.
func (suite *ConfigSuite) TestParseUnsupportedVersion(c *C) {
	future := `
version: 9.9
store:
  rootdirectory: /var/lib/zistore
`
	_, err := Parse(bytes.NewReader([]byte(future)))
	c.Assert(err, NotNil)
}
