package machine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nachosim/mem/vm"
)

var _ = Describe("Machine", func() {
	var (
		mockCtrl *gomock.Controller
		handler  *MockExceptionHandler
		m        *Machine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		handler = NewMockExceptionHandler(mockCtrl)
		stats := &Stats{}
		m = NewMachine(
			Config{PageSize: 128, NumPhysPages: 8, TLBSize: 4},
			NewInterrupt(stats), stats)
		m.SetExceptionHandler(handler)
		m.PageTableSize = 4
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should size memory from the configuration", func() {
		Expect(m.MainMemory).To(HaveLen(1024))
		Expect(m.TLB).To(HaveLen(4))
		Expect(m.NumPhysPages()).To(Equal(8))
		Expect(m.MemUsage.NumClear()).To(Equal(8))
	})

	It("should reject registers that do not exist", func() {
		Expect(func() { m.ReadRegister(NumTotalRegs) }).To(Panic())
	})

	It("should advance the program counter", func() {
		m.WriteRegister(PCReg, 8)
		m.WriteRegister(NextPCReg, 12)

		m.AdvancePC()

		Expect(m.ReadRegister(PrevPCReg)).To(Equal(8))
		Expect(m.ReadRegister(PCReg)).To(Equal(12))
		Expect(m.ReadRegister(NextPCReg)).To(Equal(16))
	})

	Context("when translating", func() {
		It("should report misaligned accesses", func() {
			_, exception := m.Translate(2, 4, false)

			Expect(exception).To(Equal(AddressErrorException))
		})

		It("should report pages beyond the address space", func() {
			_, exception := m.Translate(4*128, 1, false)

			Expect(exception).To(Equal(AddressErrorException))
		})

		It("should report TLB misses as page faults", func() {
			_, exception := m.Translate(130, 1, false)

			Expect(exception).To(Equal(PageFaultException))
		})

		It("should translate through the TLB", func() {
			m.TLB[2] = vm.TranslationEntry{
				VirtualPage: 1, PhysicalPage: 5, Valid: true,
			}

			phys, exception := m.Translate(130, 2, true)

			Expect(exception).To(Equal(NoException))
			Expect(phys).To(Equal(uint64(5*128 + 2)))
			Expect(m.TLB[2].Use).To(BeTrue())
			Expect(m.TLB[2].Dirty).To(BeTrue())
		})

		It("should refuse writes to read-only pages", func() {
			m.TLB[0] = vm.TranslationEntry{
				VirtualPage: 0, PhysicalPage: 0, Valid: true, ReadOnly: true,
			}

			_, exception := m.Translate(0, 4, true)

			Expect(exception).To(Equal(ReadOnlyException))
		})

		It("should report frames beyond memory as bus errors", func() {
			m.TLB[0] = vm.TranslationEntry{
				VirtualPage: 0, PhysicalPage: 8, Valid: true,
			}

			_, exception := m.Translate(0, 1, false)

			Expect(exception).To(Equal(BusErrorException))
		})
	})

	It("should read back written values", func() {
		m.TLB[0] = vm.TranslationEntry{
			VirtualPage: 3, PhysicalPage: 1, Valid: true,
		}

		Expect(m.WriteMem(3*128+4, 4, -7)).To(BeTrue())
		Expect(m.WriteMem(3*128+9, 1, 0x41)).To(BeTrue())

		v, ok := m.ReadMem(3*128+4, 4)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(-7))

		v, _ = m.ReadMem(3*128+9, 1)
		Expect(v).To(Equal(0x41))
		Expect(m.Frame(1)[9]).To(Equal(byte(0x41)))
	})

	It("should trap into the kernel on a miss", func() {
		handler.EXPECT().HandleException(PageFaultException).Do(
			func(which ExceptionType) {
				Expect(m.ReadRegister(BadVAddrReg)).To(Equal(200))
				Expect(m.Interrupt.Status()).To(Equal(SystemMode))
			})
		m.Interrupt.SetStatus(UserMode)

		_, ok := m.ReadMem(200, 1)

		Expect(ok).To(BeFalse())
		Expect(m.Interrupt.Status()).To(Equal(UserMode))
	})

	It("should name exceptions", func() {
		Expect(SyscallException.String()).To(Equal("SyscallException"))
		Expect(ExceptionType(42).String()).To(Equal("ExceptionType(42)"))
	})
})
