package device

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceName_Truncates(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	name := DeviceName(string(long))
	assert.Equal(t, byte(0), name[MaxNameSize-1])
	assert.Equal(t, byte('a'), name[0])
}

func TestUserDev_Size(t *testing.T) {
	// uinput_user_devはカーネル側で1116バイト
	assert.Equal(t, 1116, binary.Size(UserDev{}))
}
