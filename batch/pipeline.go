package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maxFileSize = 64 << (10 * 2)

// fatalError aborts the whole run rather than failing a single file.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) Unwrap() error {
	return e.err
}

func hasExt(file string, exts []string) bool {
	ext := filepath.Ext(file)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (c *Converter) findFiles(ctx context.Context, base string, exts []string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			if file != base && info.Name()[0] == '.' {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() {
				return nil
			}

			if info.Size() > maxFileSize || !hasExt(file, exts) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (c *Converter) fileWorker(ctx context.Context, base string, in <-chan string, fn func(string, string) error, t *tally) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			select {
			case <-ctx.Done():
				return
			default:
			}

			rel, err := filepath.Rel(base, file)
			if err != nil {
				errc <- err
				return
			}

			err = fn(file, rel)

			var fatal *fatalError
			if errors.As(err, &fatal) {
				errc <- fatal.err
				return
			}
			if err != nil {
				c.logger.Printf("Failed to convert \"%s\": %v\n", file, err)
			}
			t.add(err)
		}
	}()
	return errc, nil
}

// waitForPipeline returns the first error from any stage, cancelling the
// rest, once every stage has finished.
func waitForPipeline(cancel context.CancelFunc, errs ...<-chan error) error {
	var first error
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// run feeds every file under path with one of the given extensions to fn,
// which is called with the absolute and the relative file name.
func (c *Converter) run(path string, exts []string, fn func(string, string) error) (Summary, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return Summary{}, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var t tally
	var errcList []<-chan error

	files, errc, err := c.findFiles(ctx, dir, exts)
	if err != nil {
		return Summary{}, err
	}
	errcList = append(errcList, errc)

	for i := 0; i < c.workers; i++ {
		errc, err := c.fileWorker(ctx, dir, files, fn, &t)
		if err != nil {
			return Summary{}, err
		}
		errcList = append(errcList, errc)
	}

	err = waitForPipeline(cancelFunc, errcList...)

	return t.summary(), err
}

// outputPath maps rel under the output directory with its extension
// replaced by ext, creating any missing directories.
func outputPath(out, rel, ext string) (string, error) {
	file := filepath.Join(out, strings.TrimSuffix(rel, filepath.Ext(rel))+ext)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", &fatalError{err}
	}
	return file, nil
}
