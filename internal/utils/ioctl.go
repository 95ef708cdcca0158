// Package utils はデバイスファイル操作の補助関数
package utils

import (
	"os"

	"golang.org/x/sys/unix"
)

// IOCtl はデバイスファイルに値渡しのioctlを発行する
// f.Fd()はファイルをブロッキングモードに戻してしまうのでSyscallConn経由で呼ぶ
func IOCtl(f *os.File, cmd uintptr, arg uintptr) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var errno unix.Errno
	if err := conn.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, cmd, arg)
	}); err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}
