package builder

import (
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// ArraySpec defines user requirements for array allocation. Size is in bytes
// across all partitions.
type ArraySpec struct {
	Name      string
	Size      int64
	Alignment AlignmentType
	DataType  DataType
}

// arrayMetadata tracks information about allocated arrays
type arrayMetadata struct {
	spec     ArraySpec
	dataType DataType
	offsets  []int64 // Host copy of the device offsets, in values
}

// Builder manages code generation and execution for partition-parallel
// kernels. A partition is one box of a level; K[p] is the number of cells
// (ghosts included) the box stores.
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int // Maximum K value across all partitions
	InnerMax      int // Work items per @inner block

	// Type configuration
	FloatType DataType
	IntType   DataType

	// Static data to embed
	StaticMatrices map[string]mat.Matrix
	Defines        map[string]string

	// Array tracking for macro generation
	allocatedArrays []string
	arrayMetadata   map[string]arrayMetadata

	// Generated code
	kernelPreamble string

	// Runtime resources
	device       *gocca.OCCADevice
	kernels      map[string]*gocca.OCCAKernel
	pooledMemory map[string]*gocca.OCCAMemory
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int
	InnerMax  int // Defaults to KpartMax
	FloatType DataType
	IntType   DataType
}

// InnerLimit returns the largest @inner block a backend accepts, 0 when the
// backend has no limit
func InnerLimit(mode string) int {
	switch mode {
	case "CUDA":
		return 1024
	case "OpenCL":
		// Most OpenCL CPUs support 1024, but some are limited to 256 or 512
		// TODO: Query actual device limit using clGetDeviceInfo(CL_DEVICE_MAX_WORK_GROUP_SIZE)
		return 1024
	default:
		return 0
	}
}

// NewBuilder creates a new Builder instance
func NewBuilder(device *gocca.OCCADevice, cfg Config) (*Builder, error) {
	if device == nil {
		return nil, fmt.Errorf("device cannot be nil")
	}
	if len(cfg.K) == 0 {
		return nil, fmt.Errorf("K array cannot be empty")
	}

	// Compute KpartMax
	kpartMax := 0
	for _, k := range cfg.K {
		if k > kpartMax {
			kpartMax = k
		}
	}
	innerMax := cfg.InnerMax
	if innerMax == 0 {
		innerMax = kpartMax
	}

	if limit := InnerLimit(device.Mode()); limit > 0 && innerMax > limit {
		return nil, fmt.Errorf("%s @inner limit exceeded: %d work items but %s is limited to %d per @inner block, reduce box size",
			device.Mode(), innerMax, device.Mode(), limit)
	}

	// Set defaults
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}

	kb := &Builder{
		NumPartitions:   len(cfg.K),
		K:               make([]int, len(cfg.K)),
		KpartMax:        kpartMax,
		InnerMax:        innerMax,
		FloatType:       floatType,
		IntType:         intType,
		StaticMatrices:  make(map[string]mat.Matrix),
		Defines:         make(map[string]string),
		allocatedArrays: []string{},
		arrayMetadata:   make(map[string]arrayMetadata),
		device:          device,
		kernels:         make(map[string]*gocca.OCCAKernel),
		pooledMemory:    make(map[string]*gocca.OCCAMemory),
	}

	copy(kb.K, cfg.K)

	// Allocate K array on device, converted to the configured int width
	if kb.IntType == INT32 {
		k32 := make([]int32, len(kb.K))
		for i, v := range kb.K {
			k32[i] = int32(v)
		}
		kb.pooledMemory["K"] = device.Malloc(int64(len(k32)*4), unsafe.Pointer(&k32[0]), nil)
	} else {
		k64 := make([]int64, len(kb.K))
		for i, v := range kb.K {
			k64[i] = int64(v)
		}
		kb.pooledMemory["K"] = device.Malloc(int64(len(k64)*8), unsafe.Pointer(&k64[0]), nil)
	}

	return kb, nil
}

// Free releases all resources
func (kb *Builder) Free() {
	for _, kernel := range kb.kernels {
		kernel.Free()
	}
	for _, mem := range kb.pooledMemory {
		mem.Free()
	}
}

// Device returns the device kernels run on
func (kb *Builder) Device() *gocca.OCCADevice {
	return kb.device
}

// AddStaticMatrix adds a matrix to be embedded as static const in kernels
func (kb *Builder) AddStaticMatrix(name string, m mat.Matrix) {
	kb.StaticMatrices[name] = m
	kb.kernelPreamble = ""
}

// AddDefine adds a preprocessor constant to the preamble
func (kb *Builder) AddDefine(name string, value interface{}) {
	switch v := value.(type) {
	case float64:
		kb.Defines[name] = kb.formatReal(v)
	case bool:
		if v {
			kb.Defines[name] = "1"
		} else {
			kb.Defines[name] = "0"
		}
	default:
		kb.Defines[name] = fmt.Sprint(v)
	}
	kb.kernelPreamble = ""
}

// AllocateArrays allocates device memory with automatic offset calculation
func (kb *Builder) AllocateArrays(specs []ArraySpec) error {
	for _, spec := range specs {
		if err := kb.allocateSingleArray(spec); err != nil {
			return fmt.Errorf("failed to allocate %s: %w", spec.Name, err)
		}
	}
	return nil
}

// allocateSingleArray handles allocation of a single array
func (kb *Builder) allocateSingleArray(spec ArraySpec) error {
	if _, exists := kb.arrayMetadata[spec.Name]; exists {
		return fmt.Errorf("array %s already allocated", spec.Name)
	}
	if spec.Size <= 0 {
		return fmt.Errorf("array %s has size %d", spec.Name, spec.Size)
	}

	offsets, totalSize := kb.calculateAlignedOffsetsAndSize(spec)

	globalMem := kb.device.Malloc(totalSize, nil, nil)
	kb.pooledMemory[spec.Name+"_global"] = globalMem

	// Allocate and populate offset array
	intSize := kb.GetIntSize()
	offsetsSize := int64(len(offsets) * intSize)

	var offsetMem *gocca.OCCAMemory
	if intSize == 4 {
		offsets32 := make([]int32, len(offsets))
		for i, v := range offsets {
			offsets32[i] = int32(v)
		}
		offsetMem = kb.device.Malloc(offsetsSize, unsafe.Pointer(&offsets32[0]), nil)
	} else {
		offsetMem = kb.device.Malloc(offsetsSize, unsafe.Pointer(&offsets[0]), nil)
	}
	kb.pooledMemory[spec.Name+"_offsets"] = offsetMem

	kb.allocatedArrays = append(kb.allocatedArrays, spec.Name)
	kb.arrayMetadata[spec.Name] = arrayMetadata{
		spec:     spec,
		dataType: spec.DataType,
		offsets:  offsets,
	}
	kb.kernelPreamble = ""

	return nil
}

// calculateAlignedOffsetsAndSize computes partition offsets with alignment
func (kb *Builder) calculateAlignedOffsetsAndSize(spec ArraySpec) ([]int64, int64) {
	offsets := make([]int64, kb.NumPartitions+1)
	totalElements := kb.getTotalElements()
	bytesPerElement := spec.Size / int64(totalElements)

	valueSize := sizeOfType(spec.DataType)
	valuesPerElement := bytesPerElement / valueSize

	alignment := int64(spec.Alignment)
	if alignment == 0 {
		alignment = int64(NoAlignment)
	}
	currentByteOffset := int64(0)

	for i := 0; i < kb.NumPartitions; i++ {
		if currentByteOffset%alignment != 0 {
			currentByteOffset = ((currentByteOffset + alignment - 1) / alignment) * alignment
		}

		// Offsets are in units of VALUES so pointer arithmetic works: ptr + offset
		offsets[i] = currentByteOffset / valueSize

		partitionValues := int64(kb.K[i]) * valuesPerElement
		currentByteOffset += partitionValues * valueSize
	}

	// Final offset for bounds checking
	if currentByteOffset%alignment != 0 {
		currentByteOffset = ((currentByteOffset + alignment - 1) / alignment) * alignment
	}
	offsets[kb.NumPartitions] = currentByteOffset / valueSize

	return offsets, currentByteOffset
}

// getTotalElements returns sum of all K values
func (kb *Builder) getTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GeneratePreamble generates the kernel preamble with static data and utilities
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString(kb.generateTypeDefinitions())
	sb.WriteString(kb.generateDefines())
	sb.WriteString(kb.generateStaticMatrices())
	sb.WriteString(kb.generatePartitionMacros())

	kb.kernelPreamble = sb.String()
	return kb.kernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	floatTypeStr := "double"
	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatTypeStr = "float"
		floatSuffix = "f"
	}

	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString("\n")

	return sb.String()
}

// generateDefines emits user constants in name order
func (kb *Builder) generateDefines() string {
	if len(kb.Defines) == 0 {
		return ""
	}
	names := make([]string, 0, len(kb.Defines))
	for name := range kb.Defines {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("// Constants\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("#define %s %s\n", name, kb.Defines[name]))
	}
	sb.WriteString("\n")
	return sb.String()
}

// generateStaticMatrices converts matrices to static array initializations
func (kb *Builder) generateStaticMatrices() string {
	var sb strings.Builder

	if len(kb.StaticMatrices) > 0 {
		names := make([]string, 0, len(kb.StaticMatrices))
		for name := range kb.StaticMatrices {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("// Static matrices\n")
		for _, name := range names {
			sb.WriteString(kb.formatStaticMatrix(name, kb.StaticMatrices[name]))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatStaticMatrix formats a single matrix as a static C array
func (kb *Builder) formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder

	typeStr := "double"
	if kb.FloatType == Float32 {
		typeStr = "float"
	}

	sb.WriteString(fmt.Sprintf("const %s %s[%d][%d] = {\n", typeStr, name, rows, cols))

	for i := 0; i < rows; i++ {
		sb.WriteString("    {")
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(kb.formatReal(m.At(i, j)))
		}
		sb.WriteString("}")
		if i < rows-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")

	return sb.String()
}

func (kb *Builder) formatReal(v float64) string {
	if kb.FloatType == Float32 {
		return fmt.Sprintf("%.7ef", v)
	}
	return fmt.Sprintf("%.17e", v)
}

// generatePartitionMacros creates macros for partition data access
func (kb *Builder) generatePartitionMacros() string {
	var sb strings.Builder

	sb.WriteString("// Partition access macros\n")

	for _, arrayName := range kb.allocatedArrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			arrayName, arrayName, arrayName))
	}

	if len(kb.allocatedArrays) > 0 {
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildKernel compiles and registers a kernel with the program
func (kb *Builder) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	if kb.kernelPreamble == "" {
		kb.GeneratePreamble()
	}

	fullSource := kb.kernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error

	if kb.device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kb.device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kb.device.BuildKernelFromString(fullSource, kernelName, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}

	if kernel != nil {
		if old, exists := kb.kernels[kernelName]; exists {
			old.Free()
		}
		kb.kernels[kernelName] = kernel
		return kernel, nil
	}

	return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
}

// RunKernel executes a registered kernel with the given arguments and waits
// for the device to finish. String arguments naming an allocated array expand
// to its global and offset buffers.
func (kb *Builder) RunKernel(name string, args ...interface{}) error {
	kernel, exists := kb.kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not found", name)
	}

	expandedArgs := kb.expandKernelArgs(args)

	if err := kernel.RunWithArgs(expandedArgs...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", name, err)
	}
	kb.device.Finish()
	return nil
}

// expandKernelArgs transforms user array names to kernel parameter names
func (kb *Builder) expandKernelArgs(args []interface{}) []interface{} {
	expanded := []interface{}{}

	// Always pass K array first
	expanded = append(expanded, kb.pooledMemory["K"])

	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			globalMem, hasGlobal := kb.pooledMemory[v+"_global"]
			offsetMem, hasOffset := kb.pooledMemory[v+"_offsets"]

			if hasGlobal && hasOffset {
				expanded = append(expanded, globalMem, offsetMem)
			} else {
				expanded = append(expanded, arg)
			}
		default:
			expanded = append(expanded, arg)
		}
	}

	return expanded
}

// GetMemory returns the device memory handle for an array
func (kb *Builder) GetMemory(arrayName string) *gocca.OCCAMemory {
	if mem, exists := kb.pooledMemory[arrayName+"_global"]; exists {
		return mem
	}
	return nil
}

// GetOffsets returns the host copy of an array's partition offsets, in values
func (kb *Builder) GetOffsets(arrayName string) ([]int64, error) {
	meta, exists := kb.arrayMetadata[arrayName]
	if !exists {
		return nil, fmt.Errorf("array %s not found", arrayName)
	}
	offsets := make([]int64, len(meta.offsets))
	copy(offsets, meta.offsets)
	return offsets, nil
}

// GetAllocatedArrays returns list of allocated array names
func (kb *Builder) GetAllocatedArrays() []string {
	result := make([]string, len(kb.allocatedArrays))
	copy(result, kb.allocatedArrays)
	return result
}

// GetArrayType returns the data type of an allocated array
func (kb *Builder) GetArrayType(name string) (DataType, error) {
	metadata, exists := kb.arrayMetadata[name]
	if !exists {
		return 0, fmt.Errorf("array %s not found", name)
	}
	return metadata.dataType, nil
}

// GetIntSize returns the size of int type in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// partitionRange validates access to one partition of an array and returns
// its value offset and value count
func partitionRange[T any](kb *Builder, name string, partitionID int) (int64, int, error) {
	if partitionID < 0 || partitionID >= kb.NumPartitions {
		return 0, 0, fmt.Errorf("invalid partition ID: %d (must be 0-%d)", partitionID, kb.NumPartitions-1)
	}

	metadata, exists := kb.arrayMetadata[name]
	if !exists {
		return 0, 0, fmt.Errorf("array %s not found", name)
	}

	var sample T
	requestedType := getDataTypeFromSample(sample)
	if requestedType != metadata.dataType {
		return 0, 0, fmt.Errorf("type mismatch: array is %v, requested %v",
			metadata.dataType, requestedType)
	}

	valueSize := sizeOfType(metadata.dataType)
	valuesPerElement := metadata.spec.Size / int64(kb.getTotalElements()) / valueSize
	count := kb.K[partitionID] * int(valuesPerElement)

	return metadata.offsets[partitionID], count, nil
}

// CopyPartitionFromHost uploads one partition's data to the device
func CopyPartitionFromHost[T any](kb *Builder, name string, partitionID int, data []T) error {
	start, count, err := partitionRange[T](kb, name, partitionID)
	if err != nil {
		return err
	}
	if len(data) != count {
		return fmt.Errorf("partition %d of %s holds %d values, got %d", partitionID, name, count, len(data))
	}
	if count == 0 {
		return nil
	}

	var sample T
	size := int64(unsafe.Sizeof(sample))
	kb.GetMemory(name).CopyFromWithOffset(unsafe.Pointer(&data[0]), int64(count)*size, start*size)
	return nil
}

// CopyPartitionToHost copies a single partition's data from device to host
func CopyPartitionToHost[T any](kb *Builder, name string, partitionID int) ([]T, error) {
	start, count, err := partitionRange[T](kb, name, partitionID)
	if err != nil {
		return nil, err
	}

	result := make([]T, count)
	if count == 0 {
		return result, nil
	}

	var sample T
	size := int64(unsafe.Sizeof(sample))
	kb.GetMemory(name).CopyToWithOffset(unsafe.Pointer(&result[0]), int64(count)*size, start*size)

	return result, nil
}

func sizeOfType(dt DataType) int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// getDataTypeFromSample infers DataType from a sample value
func getDataTypeFromSample[T any](sample T) DataType {
	switch any(sample).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return INT32
	case int64:
		return INT64
	default:
		return 0
	}
}
