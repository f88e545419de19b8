package lazyslot_test

import (
	"context"
	"fmt"

	"github.com/zeebo/lazyslot"
)

func ExampleSlot() {
	slot := lazyslot.New[string]()
	dial := func() (string, error) {
		fmt.Println("dialing")
		return "conn", nil
	}

	for i := 0; i < 2; i++ {
		_ = slot.Use(context.Background(), dial, func(_ context.Context, conn string) error {
			fmt.Println("using", conn)
			return nil
		})
	}

	fmt.Println("unused:", slot.Unused())
	fmt.Println("cleared:", slot.Clear())

	// Output:
	// dialing
	// using conn
	// using conn
	// unused: true
	// cleared: true
}
