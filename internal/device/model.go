package device

// Model is a console hardware revision.
type Model int

const (
	ModelUnknown Model = iota
	ModelPSP1000
	ModelPSP2000
	ModelPSP3000
	ModelPSPGo
	ModelPSPStreet
)

var modelNames = [...]string{
	ModelUnknown:   "Unknown",
	ModelPSP1000:   "PSP-1000",
	ModelPSP2000:   "PSP-2000",
	ModelPSP3000:   "PSP-3000",
	ModelPSPGo:     "PSP Go",
	ModelPSPStreet: "PSP Street",
}

func (m Model) String() string {
	if m >= 0 && int(m) < len(modelNames) {
		return modelNames[m]
	}
	return modelNames[ModelUnknown]
}

// ModelFromProductID derives the model from the USB product ID.
func ModelFromProductID(pid uint16) Model {
	switch pid {
	case 0x01C8:
		return ModelPSP1000
	case 0x01C9:
		return ModelPSP2000
	case 0x02D2:
		return ModelPSP3000
	case 0x0268:
		return ModelPSPGo
	case 0x0557:
		return ModelPSPStreet
	default:
		return ModelUnknown
	}
}
