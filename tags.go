package etf

// formatVersion is the leading byte of every encoded term stream.
const formatVersion = 131

// Wire tags, as assigned by the external term format.
const (
	tagDistributionHeader = 68
	tagNewFloat           = 70
	tagBitBinary          = 77
	tagCompressed         = 80
	tagAtomCacheRef       = 82
	tagSmallInteger       = 97
	tagInteger            = 98
	tagFloat              = 99
	tagAtom               = 100
	tagReference          = 101
	tagPort               = 102
	tagPid                = 103
	tagSmallTuple         = 104
	tagLargeTuple         = 105
	tagNil                = 106
	tagString             = 107
	tagList               = 108
	tagBinary             = 109
	tagSmallBig           = 110
	tagLargeBig           = 111
	tagNewFun             = 112
	tagExport             = 113
	tagNewReference       = 114
	tagSmallAtom          = 115
	tagMap                = 116
	tagFun                = 117
	tagAtomUTF8           = 118
	tagSmallAtomUTF8      = 119
)
