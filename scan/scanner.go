package scan

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Scanner searches every readable region of an address space.
type Scanner struct {
	space      process.AddressSpace
	lister     process.RegionLister
	log        *logger.Logger
	maxdop     uint
	upperLimit uint64
	filter     func(memory_map.MemoryMapItem) bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithParallelism scans up to maxdop regions at once. 0 and 1 scan serially.
func WithParallelism(maxdop uint) Option {
	return func(s *Scanner) {
		s.maxdop = maxdop
	}
}

// WithUpperLimit skips regions starting above limit.
func WithUpperLimit(limit uint64) Option {
	return func(s *Scanner) {
		s.upperLimit = limit
	}
}

// WithFilter restricts the scan to regions accepted by filter.
func WithFilter(filter func(memory_map.MemoryMapItem) bool) Option {
	return func(s *Scanner) {
		s.filter = filter
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) {
		s.log = log
	}
}

// NewScanner creates a scanner over space. lister provides the regions; it is
// usually space itself.
func NewScanner(space process.AddressSpace, lister process.RegionLister, options ...Option) *Scanner {
	s := &Scanner{
		space:  space,
		lister: lister,
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "scan")),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Scanner) regions() ([]memory_map.MemoryMapItem, error) {
	mm, err := s.lister.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory map: %w", err)
	}

	var result []memory_map.MemoryMapItem
	for _, region := range mm {
		if !region.IsReadable() {
			continue
		}
		if s.upperLimit != 0 && region.Address > s.upperLimit {
			continue
		}
		if s.filter != nil && !s.filter(region) {
			continue
		}
		// adjacent regions are scanned as one run so matches may span them
		if n := len(result); n > 0 && result[n-1].End() == region.Address {
			result[n-1].Size += region.Size
			continue
		}
		result = append(result, region)
	}
	return result, nil
}

// scanRegion returns every match inside one region. Unreadable tails are
// cut off; a region that cannot be read at all yields nothing.
func (s *Scanner) scanRegion(region memory_map.MemoryMapItem, aob process.AOB) []process.ProcessMemoryAddress {
	base := process.ProcessMemoryAddress(region.Address)
	data, err := s.space.ReadMemory(base, process.ProcessMemorySize(region.Size))
	if err != nil {
		s.log.Debugln("Failed to read memory region at", base.ToString(), err)
		if len(data) == 0 {
			return nil
		}
	}

	var results []process.ProcessMemoryAddress
	for _, offset := range FindAll(data, aob) {
		results = append(results, base.Add(int64(offset)))
	}
	return results
}

// All returns the address of every match in ascending order. Adjacent
// readable regions form one run, so a match may cross from one into the next.
func (s *Scanner) All(aob process.AOB) ([]process.ProcessMemoryAddress, error) {
	if !aob.IsValid() {
		return nil, process.ErrMalformedPattern
	}

	regions, err := s.regions()
	if err != nil {
		return nil, err
	}

	maxdop := s.maxdop
	if numCPU := uint(runtime.NumCPU()); maxdop > numCPU {
		maxdop = numCPU
		s.log.Debugln("Limiting maxdop to number of CPUs:", maxdop)
	}

	s.log.Debugln("Scanning", len(regions), "regions for", aob.String(), "maxdop", maxdop)

	var results []process.ProcessMemoryAddress
	if maxdop <= 1 {
		for _, region := range regions {
			results = append(results, s.scanRegion(region, aob)...)
		}
	} else {
		sem := make(chan struct{}, maxdop)
		var wg sync.WaitGroup
		var resultsMutex sync.Mutex

		for _, region := range regions {
			wg.Add(1)
			sem <- struct{}{}

			go func(region memory_map.MemoryMapItem) {
				defer func() {
					<-sem
					wg.Done()
				}()

				matches := s.scanRegion(region, aob)
				if len(matches) > 0 {
					resultsMutex.Lock()
					results = append(results, matches...)
					resultsMutex.Unlock()
				}
			}(region)
		}

		wg.Wait()
		slices.Sort(results)
	}

	s.log.Debugln("Scan complete, found", len(results), "matches")
	return results, nil
}

// First returns the lowest matching address.
func (s *Scanner) First(aob process.AOB) (process.ProcessMemoryAddress, error) {
	results, err := s.All(aob)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%s: %w", aob.String(), process.ErrPatternNotFound)
	}
	return results[0], nil
}
