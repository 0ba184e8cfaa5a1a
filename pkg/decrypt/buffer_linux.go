package decrypt

import "golang.org/x/sys/unix"

func excludeFromCoreDump(data []byte) {
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)
}
