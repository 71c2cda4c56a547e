package nn

import "golang.org/x/sync/errgroup"

// forEachRow runs fn for every sample index in [0, n) using at most workers
// goroutines. fn must only write to state owned by its own index.
func forEachRow(workers, n int, fn func(i int) error) error {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}
