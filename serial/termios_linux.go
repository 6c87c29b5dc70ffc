package serial

import "golang.org/x/sys/unix"

// setTermiosSpeed sets both the CBAUD bits in Cflag and the separate
// Ispeed/Ospeed fields Linux's termios struct carries alongside them, so
// the rate takes whichever path the kernel driver consults.
func setTermiosSpeed(t *unix.Termios, speed uint32) {
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed & unix.CBAUD
	t.Ispeed = speed
	t.Ospeed = speed
}
