package discovery

type Option string

// Options for origin
const (
	Name       Option = "name"
	SWVersion  Option = "sw"
	SupportURL Option = "url"
)

// Options for components
const (
	Availability        Option = "avty"
	AvailabilityTopic   Option = "avty_t"
	DeviceClass         Option = "dev_cla"
	EntityCategory      Option = "ent_cat"
	ExpireAfter         Option = "exp_aft"
	Icon                Option = "ic"
	Platform            Option = "p"
	PayloadAvailable    Option = "pl_avail"
	PayloadNotAvailable Option = "pl_not_avail"
	PayloadOn           Option = "pl_on"
	PayloadOff          Option = "pl_off"
	StateClass          Option = "stat_cla"
	StateTopic          Option = "stat_t"
	UniqueID            Option = "uniq_id"
	UnitOfMeasurement   Option = "unit_of_meas"
	ValueTemplate       Option = "val_tpl"
)
