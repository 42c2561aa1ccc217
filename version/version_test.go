package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfoNeverReturnsNil(t *testing.T) {
	info := GetBuildInfo()
	assert.NotNil(t, info)
	assert.NotEmpty(t, info.GoVersion)
}

func TestGetDependencyReturnsNilForUnknownModule(t *testing.T) {
	assert.Nil(t, GetDependency("github.com/this/does-not-exist"))
}
