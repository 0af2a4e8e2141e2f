// Package godwarf holds the DWARF vocabulary shared by the section
// decoders: tags, attributes, value forms and attribute classes, plus the
// helper that locates debug sections inside an ELF file.
package godwarf

import "fmt"

// Tag identifies the program construct a DIE describes.
type Tag uint32

const (
	TagArrayType              Tag = 0x01
	TagClassType              Tag = 0x02
	TagEntryPoint             Tag = 0x03
	TagEnumerationType        Tag = 0x04
	TagFormalParameter        Tag = 0x05
	TagImportedDecl           Tag = 0x08
	TagLabel                  Tag = 0x0a
	TagLexDwarfBlock          Tag = 0x0b
	TagMember                 Tag = 0x0d
	TagPointerType            Tag = 0x0f
	TagReferenceType          Tag = 0x10
	TagCompileUnit            Tag = 0x11
	TagStringType             Tag = 0x12
	TagStructType             Tag = 0x13
	TagSubroutineType         Tag = 0x15
	TagTypedef                Tag = 0x16
	TagUnionType              Tag = 0x17
	TagUnspecifiedParameters  Tag = 0x18
	TagVariant                Tag = 0x19
	TagCommonDwarfBlock       Tag = 0x1a
	TagCommonInclusion        Tag = 0x1b
	TagInheritance            Tag = 0x1c
	TagInlinedSubroutine      Tag = 0x1d
	TagModule                 Tag = 0x1e
	TagPtrToMemberType        Tag = 0x1f
	TagSetType                Tag = 0x20
	TagSubrangeType           Tag = 0x21
	TagWithStmt               Tag = 0x22
	TagAccessDecl             Tag = 0x23
	TagBaseType               Tag = 0x24
	TagCatchDwarfBlock        Tag = 0x25
	TagConstType              Tag = 0x26
	TagConstant               Tag = 0x27
	TagEnumerator             Tag = 0x28
	TagFileType               Tag = 0x29
	TagFriend                 Tag = 0x2a
	TagNamelist               Tag = 0x2b
	TagNamelistItem           Tag = 0x2c
	TagPackedType             Tag = 0x2d
	TagSubprogram             Tag = 0x2e
	TagTemplateTypeParameter  Tag = 0x2f
	TagTemplateValueParameter Tag = 0x30
	TagThrownType             Tag = 0x31
	TagTryDwarfBlock          Tag = 0x32
	TagVariantPart            Tag = 0x33
	TagVariable               Tag = 0x34
	TagVolatileType           Tag = 0x35
	TagDwarfProcedure         Tag = 0x36
	TagRestrictType           Tag = 0x37
	TagInterfaceType          Tag = 0x38
	TagNamespace              Tag = 0x39
	TagImportedModule         Tag = 0x3a
	TagUnspecifiedType        Tag = 0x3b
	TagPartialUnit            Tag = 0x3c
	TagImportedUnit           Tag = 0x3d
	TagCondition              Tag = 0x3f
	TagSharedType             Tag = 0x40
	TagTypeUnit               Tag = 0x41
	TagRvalueReferenceType    Tag = 0x42
	TagTemplateAlias          Tag = 0x43
	TagCoarrayType            Tag = 0x44
	TagGenericSubrange        Tag = 0x45
	TagDynamicType            Tag = 0x46
	TagAtomicType             Tag = 0x47
	TagCallSite               Tag = 0x48
	TagCallSiteParameter      Tag = 0x49
	TagSkeletonUnit           Tag = 0x4a
	TagImmutableType          Tag = 0x4b
	TagLoUser                 Tag = 0x4080
	TagHiUser                 Tag = 0xffff
)

var tagNames = map[Tag]string{
	TagArrayType:         "ArrayType",
	TagClassType:         "ClassType",
	TagEntryPoint:        "EntryPoint",
	TagEnumerationType:   "EnumerationType",
	TagFormalParameter:   "FormalParameter",
	TagImportedDecl:      "ImportedDecl",
	TagLabel:             "Label",
	TagLexDwarfBlock:     "LexDwarfBlock",
	TagMember:            "Member",
	TagPointerType:       "PointerType",
	TagReferenceType:     "ReferenceType",
	TagCompileUnit:       "CompileUnit",
	TagStringType:        "StringType",
	TagStructType:        "StructType",
	TagSubroutineType:    "SubroutineType",
	TagTypedef:           "Typedef",
	TagUnionType:         "UnionType",
	TagVariant:           "Variant",
	TagInheritance:       "Inheritance",
	TagInlinedSubroutine: "InlinedSubroutine",
	TagModule:            "Module",
	TagSubrangeType:      "SubrangeType",
	TagBaseType:          "BaseType",
	TagConstType:         "ConstType",
	TagConstant:          "Constant",
	TagEnumerator:        "Enumerator",
	TagSubprogram:        "Subprogram",
	TagVariable:          "Variable",
	TagVolatileType:      "VolatileType",
	TagRestrictType:      "RestrictType",
	TagNamespace:         "Namespace",
	TagUnspecifiedType:   "UnspecifiedType",
	TagPartialUnit:       "PartialUnit",
	TagTypeUnit:          "TypeUnit",
	TagSkeletonUnit:      "SkeletonUnit",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%#x)", uint32(t))
}

// Attr identifies one attribute of a DIE.
type Attr uint32

const (
	AttrSibling              Attr = 0x01
	AttrLocation             Attr = 0x02
	AttrName                 Attr = 0x03
	AttrOrdering             Attr = 0x09
	AttrByteSize             Attr = 0x0b
	AttrBitOffset            Attr = 0x0c
	AttrBitSize              Attr = 0x0d
	AttrStmtList             Attr = 0x10
	AttrLowpc                Attr = 0x11
	AttrHighpc               Attr = 0x12
	AttrLanguage             Attr = 0x13
	AttrDiscr                Attr = 0x15
	AttrDiscrValue           Attr = 0x16
	AttrVisibility           Attr = 0x17
	AttrImport               Attr = 0x18
	AttrStringLength         Attr = 0x19
	AttrCommonRef            Attr = 0x1a
	AttrCompDir              Attr = 0x1b
	AttrConstValue           Attr = 0x1c
	AttrContainingType       Attr = 0x1d
	AttrDefaultValue         Attr = 0x1e
	AttrInline               Attr = 0x20
	AttrIsOptional           Attr = 0x21
	AttrLowerBound           Attr = 0x22
	AttrProducer             Attr = 0x25
	AttrPrototyped           Attr = 0x27
	AttrReturnAddr           Attr = 0x2a
	AttrStartScope           Attr = 0x2c
	AttrStrideSize           Attr = 0x2e
	AttrUpperBound           Attr = 0x2f
	AttrAbstractOrigin       Attr = 0x31
	AttrAccessibility        Attr = 0x32
	AttrAddrClass            Attr = 0x33
	AttrArtificial           Attr = 0x34
	AttrBaseTypes            Attr = 0x35
	AttrCalling              Attr = 0x36
	AttrCount                Attr = 0x37
	AttrDataMemberLoc        Attr = 0x38
	AttrDeclColumn           Attr = 0x39
	AttrDeclFile             Attr = 0x3a
	AttrDeclLine             Attr = 0x3b
	AttrDeclaration          Attr = 0x3c
	AttrDiscrList            Attr = 0x3d
	AttrEncoding             Attr = 0x3e
	AttrExternal             Attr = 0x3f
	AttrFrameBase            Attr = 0x40
	AttrFriend               Attr = 0x41
	AttrIdentifierCase       Attr = 0x42
	AttrMacroInfo            Attr = 0x43
	AttrNamelistItem         Attr = 0x44
	AttrPriority             Attr = 0x45
	AttrSegment              Attr = 0x46
	AttrSpecification        Attr = 0x47
	AttrStaticLink           Attr = 0x48
	AttrType                 Attr = 0x49
	AttrUseLocation          Attr = 0x4a
	AttrVarParam             Attr = 0x4b
	AttrVirtuality           Attr = 0x4c
	AttrVtableElemLoc        Attr = 0x4d
	AttrAllocated            Attr = 0x4e
	AttrAssociated           Attr = 0x4f
	AttrDataLocation         Attr = 0x50
	AttrStride               Attr = 0x51
	AttrEntrypc              Attr = 0x52
	AttrUseUTF8              Attr = 0x53
	AttrExtension            Attr = 0x54
	AttrRanges               Attr = 0x55
	AttrTrampoline           Attr = 0x56
	AttrCallColumn           Attr = 0x57
	AttrCallFile             Attr = 0x58
	AttrCallLine             Attr = 0x59
	AttrDescription          Attr = 0x5a
	AttrBinaryScale          Attr = 0x5b
	AttrDecimalScale         Attr = 0x5c
	AttrSmall                Attr = 0x5d
	AttrDecimalSign          Attr = 0x5e
	AttrDigitCount           Attr = 0x5f
	AttrPictureString        Attr = 0x60
	AttrMutable              Attr = 0x61
	AttrThreadsScaled        Attr = 0x62
	AttrExplicit             Attr = 0x63
	AttrObjectPointer        Attr = 0x64
	AttrEndianity            Attr = 0x65
	AttrElemental            Attr = 0x66
	AttrPure                 Attr = 0x67
	AttrRecursive            Attr = 0x68
	AttrSignature            Attr = 0x69
	AttrMainSubprogram       Attr = 0x6a
	AttrDataBitOffset        Attr = 0x6b
	AttrConstExpr            Attr = 0x6c
	AttrEnumClass            Attr = 0x6d
	AttrLinkageName          Attr = 0x6e
	AttrStringLengthBitSize  Attr = 0x6f
	AttrStringLengthByteSize Attr = 0x70
	AttrRank                 Attr = 0x71
	AttrStrOffsetsBase       Attr = 0x72
	AttrAddrBase             Attr = 0x73
	AttrRnglistsBase         Attr = 0x74
	AttrDwoName              Attr = 0x76
	AttrReference            Attr = 0x77
	AttrRvalueReference      Attr = 0x78
	AttrMacros               Attr = 0x79
	AttrCallAllCalls         Attr = 0x7a
	AttrCallAllSourceCalls   Attr = 0x7b
	AttrCallAllTailCalls     Attr = 0x7c
	AttrCallReturnPC         Attr = 0x7d
	AttrCallValue            Attr = 0x7e
	AttrCallOrigin           Attr = 0x7f
	AttrCallParameter        Attr = 0x80
	AttrCallPC               Attr = 0x81
	AttrCallTailCall         Attr = 0x82
	AttrCallTarget           Attr = 0x83
	AttrCallTargetClobbered  Attr = 0x84
	AttrCallDataLocation     Attr = 0x85
	AttrCallDataValue        Attr = 0x86
	AttrNoreturn             Attr = 0x87
	AttrAlignment            Attr = 0x88
	AttrExportSymbols        Attr = 0x89
	AttrDeleted              Attr = 0x8a
	AttrDefaulted            Attr = 0x8b
	AttrLoclistsBase         Attr = 0x8c
	AttrLoUser               Attr = 0x2000
	AttrHiUser               Attr = 0x3fff
)

var attrNames = map[Attr]string{
	AttrSibling:        "Sibling",
	AttrLocation:       "Location",
	AttrName:           "Name",
	AttrByteSize:       "ByteSize",
	AttrBitOffset:      "BitOffset",
	AttrBitSize:        "BitSize",
	AttrStmtList:       "StmtList",
	AttrLowpc:          "Lowpc",
	AttrHighpc:         "Highpc",
	AttrLanguage:       "Language",
	AttrCompDir:        "CompDir",
	AttrConstValue:     "ConstValue",
	AttrInline:         "Inline",
	AttrProducer:       "Producer",
	AttrPrototyped:     "Prototyped",
	AttrAbstractOrigin: "AbstractOrigin",
	AttrCount:          "Count",
	AttrDataMemberLoc:  "DataMemberLoc",
	AttrDeclFile:       "DeclFile",
	AttrDeclLine:       "DeclLine",
	AttrDeclaration:    "Declaration",
	AttrEncoding:       "Encoding",
	AttrExternal:       "External",
	AttrFrameBase:      "FrameBase",
	AttrSpecification:  "Specification",
	AttrType:           "Type",
	AttrRanges:         "Ranges",
	AttrDataBitOffset:  "DataBitOffset",
	AttrLinkageName:    "LinkageName",
	AttrStrOffsetsBase: "StrOffsetsBase",
	AttrAddrBase:       "AddrBase",
	AttrRnglistsBase:   "RnglistsBase",
	AttrLoclistsBase:   "LoclistsBase",
	AttrEntrypc:        "Entrypc",
}

func (a Attr) String() string {
	if s, ok := attrNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Attr(%#x)", uint32(a))
}

// Form is the encoding used for one attribute value.
type Form uint32

const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17 // DWARF 4
	FormExprloc       Form = 0x18 // DWARF 4
	FormFlagPresent   Form = 0x19 // DWARF 4
	FormStrx          Form = 0x1a // DWARF 5
	FormAddrx         Form = 0x1b // DWARF 5
	FormRefSup4       Form = 0x1c // DWARF 5
	FormStrpSup       Form = 0x1d // DWARF 5
	FormData16        Form = 0x1e // DWARF 5
	FormLineStrp      Form = 0x1f // DWARF 5
	FormRefSig8       Form = 0x20 // DWARF 4
	FormImplicitConst Form = 0x21 // DWARF 5
	FormLoclistx      Form = 0x22 // DWARF 5
	FormRnglistx      Form = 0x23 // DWARF 5
	FormRefSup8       Form = 0x24 // DWARF 5
	FormStrx1         Form = 0x25 // DWARF 5
	FormStrx2         Form = 0x26 // DWARF 5
	FormStrx3         Form = 0x27 // DWARF 5
	FormStrx4         Form = 0x28 // DWARF 5
	FormAddrx1        Form = 0x29 // DWARF 5
	FormAddrx2        Form = 0x2a // DWARF 5
	FormAddrx3        Form = 0x2b // DWARF 5
	FormAddrx4        Form = 0x2c // DWARF 5
)

var formNames = map[Form]string{
	FormAddr:          "Addr",
	FormBlock2:        "Block2",
	FormBlock4:        "Block4",
	FormData2:         "Data2",
	FormData4:         "Data4",
	FormData8:         "Data8",
	FormString:        "String",
	FormBlock:         "Block",
	FormBlock1:        "Block1",
	FormData1:         "Data1",
	FormFlag:          "Flag",
	FormSdata:         "Sdata",
	FormStrp:          "Strp",
	FormUdata:         "Udata",
	FormRefAddr:       "RefAddr",
	FormRef1:          "Ref1",
	FormRef2:          "Ref2",
	FormRef4:          "Ref4",
	FormRef8:          "Ref8",
	FormRefUdata:      "RefUdata",
	FormIndirect:      "Indirect",
	FormSecOffset:     "SecOffset",
	FormExprloc:       "Exprloc",
	FormFlagPresent:   "FlagPresent",
	FormStrx:          "Strx",
	FormAddrx:         "Addrx",
	FormRefSup4:       "RefSup4",
	FormStrpSup:       "StrpSup",
	FormData16:        "Data16",
	FormLineStrp:      "LineStrp",
	FormRefSig8:       "RefSig8",
	FormImplicitConst: "ImplicitConst",
	FormLoclistx:      "Loclistx",
	FormRnglistx:      "Rnglistx",
	FormRefSup8:       "RefSup8",
	FormStrx1:         "Strx1",
	FormStrx2:         "Strx2",
	FormStrx3:         "Strx3",
	FormStrx4:         "Strx4",
	FormAddrx1:        "Addrx1",
	FormAddrx2:        "Addrx2",
	FormAddrx3:        "Addrx3",
	FormAddrx4:        "Addrx4",
}

func (f Form) String() string {
	if s, ok := formNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Form(%#x)", uint32(f))
}

// Known reports whether f is a form this decoder understands.
func (f Form) Known() bool {
	_, ok := formNames[f]
	return ok
}

// Class is the value class an attribute value belongs to once decoded.
type Class int

const (
	// ClassUnknown is the zero value, not a valid class.
	ClassUnknown Class = iota

	// ClassAddress represents values of type uint64 that are addresses on
	// the target machine.
	ClassAddress

	// ClassBlock represents values of type []byte whose interpretation
	// depends on the attribute.
	ClassBlock

	// ClassConstant represents values of type int64 that are constants.
	ClassConstant

	// ClassExprLoc represents values of type []byte that contain an encoded
	// DWARF expression or location description.
	ClassExprLoc

	// ClassFlag represents values of type bool.
	ClassFlag

	// ClassLinePtr represents values of type int64 that are offsets into
	// the line section.
	ClassLinePtr

	// ClassLocListPtr represents values of type int64 that are offsets into
	// the location-list section.
	ClassLocListPtr

	// ClassMacPtr represents values of type int64 that are offsets into the
	// macro-information section.
	ClassMacPtr

	// ClassRangeListPtr represents values of type int64 that are offsets
	// into the range-list section.
	ClassRangeListPtr

	// ClassReference represents values of type uint64 that are offsets of
	// another DIE within the info section.
	ClassReference

	// ClassReferenceSig represents values of type uint64 that are type
	// signatures referencing a type unit.
	ClassReferenceSig

	// ClassString represents string values.
	ClassString

	// ClassAddrPtr, ClassLocList, ClassRngList, ClassStrOffsetsPtr are the
	// DWARF 5 index/offset classes.
	ClassAddrPtr
	ClassLocList
	ClassRngList
	ClassStrOffsetsPtr
)

var classNames = [...]string{
	ClassUnknown:       "ClassUnknown",
	ClassAddress:       "ClassAddress",
	ClassBlock:         "ClassBlock",
	ClassConstant:      "ClassConstant",
	ClassExprLoc:       "ClassExprLoc",
	ClassFlag:          "ClassFlag",
	ClassLinePtr:       "ClassLinePtr",
	ClassLocListPtr:    "ClassLocListPtr",
	ClassMacPtr:        "ClassMacPtr",
	ClassRangeListPtr:  "ClassRangeListPtr",
	ClassReference:     "ClassReference",
	ClassReferenceSig:  "ClassReferenceSig",
	ClassString:        "ClassString",
	ClassAddrPtr:       "ClassAddrPtr",
	ClassLocList:       "ClassLocList",
	ClassRngList:       "ClassRngList",
	ClassStrOffsetsPtr: "ClassStrOffsetsPtr",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", int(c))
}
